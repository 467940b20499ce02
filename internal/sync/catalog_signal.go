package sync

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListenForCatalogChanges forwards every notification on channel to out until
// ctx is done. Signals are coalesced: a send is dropped while out is full.
func ListenForCatalogChanges(ctx context.Context, pool *pgxpool.Pool, channel string, out chan<- struct{}) error {
	if pool == nil {
		return errors.New("catalog listener pool is nil")
	}
	if out == nil {
		return errors.New("catalog signal channel is nil")
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}

	for {
		_, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		select {
		case out <- struct{}{}:
		default:
		}
	}
}
