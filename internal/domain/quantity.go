package domain

import (
	"math"
	"strconv"
	"strings"
)

// BuyHaircut is the share of the balance usable for a buy. The remainder
// covers price drift between quote and execution.
const BuyHaircut = 0.95

type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStopLimit OrderType = "stop_limit"
)

type TradeMode string

const (
	ModeBuy  TradeMode = "buy"
	ModeSell TradeMode = "sell"
)

// Amount is a form value that may be empty.
type Amount struct {
	Value float64
	Valid bool
}

// AmountOf returns an empty Amount for anything that is not a positive finite number.
func AmountOf(v float64) Amount {
	if !positive(v) {
		return Amount{}
	}
	return Amount{Value: v, Valid: true}
}

// ParseAmount parses user input. Non-numeric, non-positive and non-finite
// input yields an empty Amount.
func ParseAmount(s string) Amount {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return Amount{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}
	}
	return AmountOf(v)
}

// USDText formats the amount as USD, or "" when empty.
func (a Amount) USDText() string {
	if !a.Valid {
		return ""
	}
	return FormatUSD(a.Value)
}

// CoinText formats the amount in coin units, or "" when empty.
func (a Amount) CoinText() string {
	if !a.Valid {
		return ""
	}
	return FormatCoin(a.Value)
}

func UsdToCoin(usd, price float64) Amount {
	if !positive(usd) || !positive(price) {
		return Amount{}
	}
	return AmountOf(usd / price)
}

func CoinToUsd(coin, price float64) Amount {
	if !positive(coin) || !positive(price) {
		return Amount{}
	}
	return AmountOf(coin * price)
}

// EffectivePrice is the limit price for limit and stop-limit orders that have
// one set, otherwise the current price.
func EffectivePrice(orderType OrderType, limitPrice Amount, currentPrice float64) float64 {
	if (orderType == OrderLimit || orderType == OrderStopLimit) && limitPrice.Valid {
		return limitPrice.Value
	}
	return currentPrice
}

// MaxAvailable is the largest coin quantity the user can trade.
func MaxAvailable(mode TradeMode, balance, effectivePrice, holdingsQuantity float64) float64 {
	if mode == ModeSell {
		if !positive(holdingsQuantity) {
			return 0
		}
		return holdingsQuantity
	}
	if !positive(effectivePrice) || !positive(balance) {
		return 0
	}
	return (balance * BuyHaircut) / effectivePrice
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
