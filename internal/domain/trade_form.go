package domain

// Field identifies one side of the USD/coin amount pair.
type Field int

const (
	FieldNone Field = iota
	FieldUSD
	FieldCoin
)

// TradeQuantityState is the USD/coin amount pair of a trade or alert form.
// The field the user edits is authoritative; the other one is derived from the
// reference price at the moment of that edit. Changing the reference price
// never rewrites either field.
type TradeQuantityState struct {
	usd      Amount
	coin     Amount
	usdText  string
	coinText string
	refPrice float64
	edited   Field
}

// EditUSD records user input in the USD field and derives the coin field.
func (s *TradeQuantityState) EditUSD(input string) {
	s.edited = FieldUSD
	s.usdText = input
	s.usd = ParseAmount(input)
	if !s.usd.Valid {
		s.coin = Amount{}
	} else {
		s.coin = UsdToCoin(s.usd.Value, s.refPrice)
	}
	s.coinText = s.coin.CoinText()
}

// EditCoin records user input in the coin field and derives the USD field.
func (s *TradeQuantityState) EditCoin(input string) {
	s.edited = FieldCoin
	s.coinText = input
	s.coin = ParseAmount(input)
	if !s.coin.Valid {
		s.usd = Amount{}
	} else {
		s.usd = CoinToUsd(s.coin.Value, s.refPrice)
	}
	s.usdText = s.usd.USDText()
}

// SetCoinAmount fills the coin field programmatically (e.g. a "max" button).
func (s *TradeQuantityState) SetCoinAmount(v float64) {
	s.EditCoin(FormatCoin(v))
}

// SetReferencePrice changes the price used by the next edit.
func (s *TradeQuantityState) SetReferencePrice(p float64) {
	if !finite(p) || p < 0 {
		p = 0
	}
	s.refPrice = p
}

// Reset empties both fields. The reference price is kept.
func (s *TradeQuantityState) Reset() {
	ref := s.refPrice
	*s = TradeQuantityState{refPrice: ref}
}

func (s TradeQuantityState) USD() Amount             { return s.usd }
func (s TradeQuantityState) Coin() Amount            { return s.coin }
func (s TradeQuantityState) USDText() string         { return s.usdText }
func (s TradeQuantityState) CoinText() string        { return s.coinText }
func (s TradeQuantityState) ReferencePrice() float64 { return s.refPrice }
func (s TradeQuantityState) LastEdited() Field       { return s.edited }
