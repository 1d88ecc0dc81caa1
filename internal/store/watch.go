package store

import (
	"context"
	"log/slog"
	"time"
)

// Watch returns a channel that receives a value whenever another connection
// commits to the database. Signals are coalesced: a slow reader sees at least
// one signal after any number of foreign commits. The channel is closed when
// ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)

		last, err := s.dataVersion(ctx)
		if err != nil {
			slog.Debug("watch: initial data_version failed", "error", err)
		}

		ticker := time.NewTicker(s.watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			v, err := s.dataVersion(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("watch: data_version failed", "error", err)
				}
				continue
			}
			if v == last {
				continue
			}
			last = v
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	return out
}

func (s *Store) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
