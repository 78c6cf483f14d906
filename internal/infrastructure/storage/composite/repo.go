package composite

import (
	"context"

	"nexchain/internal/application/port"
	"nexchain/internal/domain"
)

// Repo fans every write out to all repos. The first error wins, the
// remaining repos are still written.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestPrice(ctx context.Context, p domain.CoinPrice) error {
	return r.each(func(repo port.Repository) error { return repo.UpsertLatestPrice(ctx, p) })
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, payload string) error {
	return r.each(func(repo port.Repository) error { return repo.InsertSnapshot(ctx, ts, payload) })
}

func (r *Repo) InsertTrigger(ctx context.Context, rec port.TriggerRecord) error {
	return r.each(func(repo port.Repository) error { return repo.InsertTrigger(ctx, rec) })
}

// DeleteSnapshotsBefore prunes every repo that keeps snapshot history and
// returns the total row count.
func (r *Repo) DeleteSnapshotsBefore(ctx context.Context, ts int64) (int64, error) {
	var total int64
	err := r.each(func(repo port.Repository) error {
		p, ok := repo.(port.SnapshotPruner)
		if !ok {
			return nil
		}
		n, err := p.DeleteSnapshotsBefore(ctx, ts)
		total += n
		return err
	})
	return total, err
}

// ListTriggers reads from the first repo that can list triggers.
func (r *Repo) ListTriggers(ctx context.Context, userID string, limit int) ([]port.TriggerRecord, error) {
	for _, repo := range r.repos {
		if l, ok := repo.(port.TriggerLister); ok {
			return l.ListTriggers(ctx, userID, limit)
		}
	}
	return nil, nil
}

// Close is a no-op: each repo is closed by whoever opened it.
func (r *Repo) Close() error { return nil }

func (r *Repo) each(fn func(port.Repository) error) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := fn(repo); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ port.Repository     = (*Repo)(nil)
	_ port.SnapshotPruner = (*Repo)(nil)
	_ port.TriggerLister  = (*Repo)(nil)
)
