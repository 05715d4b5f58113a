package credits

import "context"

type Repository interface {
	// Balance returns the user's credits, zero when no row exists yet.
	Balance(ctx context.Context, userID string) (int64, error)
	// Consume takes one credit. It reports false, without changing anything,
	// when the balance is already zero.
	Consume(ctx context.Context, userID string) (bool, error)
	// Grant adds amount credits, creating the balance row if needed, and
	// returns the new balance.
	Grant(ctx context.Context, userID string, amount int64) (int64, error)
}
