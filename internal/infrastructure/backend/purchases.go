package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

type orderResp struct {
	Message    string              `json:"message"`
	Balance    decimal.NullDecimal `json:"balance"`
	NewBalance decimal.NullDecimal `json:"new_balance"`
}

func (r orderResp) result() port.OrderResult {
	out := port.OrderResult{Message: r.Message}
	switch {
	case r.NewBalance.Valid:
		out.Balance = r.NewBalance.Decimal
	case r.Balance.Valid:
		out.Balance = r.Balance.Decimal
	}
	return out
}

// Buy: POST /purchases/buy
func (c *Client) Buy(ctx context.Context, o port.Order) (port.OrderResult, error) {
	var resp orderResp
	if err := c.do(ctx, http.MethodPost, "/purchases/buy", o, &resp); err != nil {
		return port.OrderResult{}, err
	}
	return resp.result(), nil
}

// Sell: POST /purchases/sell
func (c *Client) Sell(ctx context.Context, o port.Order) (port.OrderResult, error) {
	var resp orderResp
	if err := c.do(ctx, http.MethodPost, "/purchases/sell", o, &resp); err != nil {
		return port.OrderResult{}, err
	}
	return resp.result(), nil
}

type balanceResp struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance: GET /purchases/balance/:userId
func (c *Client) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var resp balanceResp
	if err := c.do(ctx, http.MethodGet, "/purchases/balance/"+url.PathEscape(userID), nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

type holdingsResp struct {
	Holdings []map[string]any `json:"holdings"`
}

// Holdings: GET /purchases/holdings/:userId. Rows come in several shapes and
// are normalized into domain.Holding.
func (c *Client) Holdings(ctx context.Context, userID string) ([]domain.Holding, error) {
	var resp holdingsResp
	if err := c.do(ctx, http.MethodGet, "/purchases/holdings/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return domain.NormalizeHoldings(resp.Holdings), nil
}

type coinsResp struct {
	Coins []domain.CoinPrice `json:"coins"`
}

// ListCoins: GET /coins. Accepts a bare array or {success, coins}.
func (c *Client) ListCoins(ctx context.Context) ([]domain.CoinPrice, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/coins", nil, &raw); err != nil {
		return nil, err
	}

	var coins []domain.CoinPrice
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &coins); err != nil {
			return nil, fmt.Errorf("decode coins: %w", err)
		}
		return coins, nil
	}
	var resp coinsResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode coins: %w", err)
	}
	return resp.Coins, nil
}

type twoFactorReq struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// VerifyTwoFactor: POST /auth/2fa/verify
func (c *Client) VerifyTwoFactor(ctx context.Context, userID, code string) error {
	return c.do(ctx, http.MethodPost, "/auth/2fa/verify", twoFactorReq{UserID: userID, Code: code}, nil)
}

var _ port.Backend = (*Client)(nil)
