package backend

import (
	"context"
	"net/http"
	"net/url"

	"nexchain/internal/domain"
)

type watchlistResp struct {
	Watchlist []domain.WatchlistItem `json:"watchlist"`
}

// ListWatchlist: GET /watchlist?user_id=
func (c *Client) ListWatchlist(ctx context.Context, userID string) ([]domain.WatchlistItem, error) {
	var resp watchlistResp
	path := "/watchlist?" + url.Values{"user_id": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Watchlist, nil
}

type watchlistReq struct {
	UserID string `json:"user_id"`
	CoinID string `json:"coin_id"`
	Symbol string `json:"coin_symbol,omitempty"`
	Name   string `json:"coin_name,omitempty"`
}

// AddToWatchlist: POST /watchlist/add
func (c *Client) AddToWatchlist(ctx context.Context, userID string, item domain.WatchlistItem) error {
	req := watchlistReq{UserID: userID, CoinID: item.CoinID, Symbol: item.Symbol, Name: item.Name}
	return c.do(ctx, http.MethodPost, "/watchlist/add", req, nil)
}

// RemoveFromWatchlist: DELETE /watchlist/remove
func (c *Client) RemoveFromWatchlist(ctx context.Context, userID, coinID string) error {
	return c.do(ctx, http.MethodDelete, "/watchlist/remove", watchlistReq{UserID: userID, CoinID: coinID}, nil)
}
