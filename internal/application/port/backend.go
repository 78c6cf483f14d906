package port

import (
	"context"

	"github.com/shopspring/decimal"

	"nexchain/internal/domain"
)

type NewAlert struct {
	UserID      string                `json:"user_id"`
	CoinID      string                `json:"coin_id"`
	CoinSymbol  string                `json:"coin_symbol"`
	TargetPrice decimal.Decimal       `json:"target_price"`
	Condition   domain.AlertCondition `json:"condition"`
}

type Order struct {
	UserID     string           `json:"user_id"`
	CoinID     string           `json:"coin_id"`
	CoinSymbol string           `json:"coin_symbol"`
	CoinName   string           `json:"coin_name,omitempty"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	TotalCost  decimal.Decimal  `json:"total_cost"`
	OrderType  domain.OrderType `json:"order_type"`
	TwoFACode  string           `json:"two_fa_code,omitempty"`
}

// OrderResult is the backend's answer to a buy or sell. Balance is zero when
// the backend did not report one.
type OrderResult struct {
	Message string
	Balance decimal.Decimal
}

// Backend is the platform REST API. It owns every authoritative decision.
type Backend interface {
	ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error)
	CheckAlerts(ctx context.Context, userID string, current map[string]float64) ([]domain.TriggeredAlert, error)
	CreateAlert(ctx context.Context, a NewAlert) (domain.Alert, error)
	DeleteAlert(ctx context.Context, alertID domain.ID) error

	ListWatchlist(ctx context.Context, userID string) ([]domain.WatchlistItem, error)
	AddToWatchlist(ctx context.Context, userID string, item domain.WatchlistItem) error
	RemoveFromWatchlist(ctx context.Context, userID, coinID string) error

	Buy(ctx context.Context, o Order) (OrderResult, error)
	Sell(ctx context.Context, o Order) (OrderResult, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Holdings(ctx context.Context, userID string) ([]domain.Holding, error)

	ListCoins(ctx context.Context) ([]domain.CoinPrice, error)
	VerifyTwoFactor(ctx context.Context, userID, code string) error
}
