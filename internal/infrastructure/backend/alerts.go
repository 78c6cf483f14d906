package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

type alertsResp struct {
	Alerts []domain.Alert `json:"alerts"`
}

// ListAlerts: GET /alerts/:userId
func (c *Client) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	var resp alertsResp
	if err := c.do(ctx, http.MethodGet, "/alerts/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

type checkReq struct {
	UserID        string                     `json:"user_id"`
	CurrentPrices map[string]decimal.Decimal `json:"current_prices"`
}

type checkResp struct {
	Triggered []domain.TriggeredAlert `json:"triggered"`
}

// CheckAlerts: POST /alerts/check. The backend decides which alerts fire.
func (c *Client) CheckAlerts(ctx context.Context, userID string, current map[string]float64) ([]domain.TriggeredAlert, error) {
	prices := make(map[string]decimal.Decimal, len(current))
	for id, p := range current {
		prices[id] = decimal.NewFromFloat(p)
	}

	var resp checkResp
	if err := c.do(ctx, http.MethodPost, "/alerts/check", checkReq{UserID: userID, CurrentPrices: prices}, &resp); err != nil {
		return nil, err
	}
	return resp.Triggered, nil
}

type createAlertResp struct {
	Alert domain.Alert `json:"alert"`
}

// CreateAlert: POST /alerts/create
func (c *Client) CreateAlert(ctx context.Context, a port.NewAlert) (domain.Alert, error) {
	var resp createAlertResp
	if err := c.do(ctx, http.MethodPost, "/alerts/create", a, &resp); err != nil {
		return domain.Alert{}, err
	}
	out := resp.Alert
	if out.CoinID == "" {
		out = domain.Alert{
			ID:          out.ID,
			UserID:      domain.ID(a.UserID),
			CoinID:      a.CoinID,
			CoinSymbol:  a.CoinSymbol,
			TargetPrice: a.TargetPrice,
			Condition:   a.Condition,
		}
	}
	return out, nil
}

// DeleteAlert: DELETE /alerts/:id
func (c *Client) DeleteAlert(ctx context.Context, alertID domain.ID) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(string(alertID)), nil, nil)
}
