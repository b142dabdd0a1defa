package store

import (
	"context"

	"github.com/me/apron/pkg/model"
)

// Store is the movement journal: an append-only audit trail of scheduling
// decisions and timed releases.
type Store interface {
	RecordMovement(ctx context.Context, m *model.Movement) error
	ListMovements(ctx context.Context, opts model.ListOptions) ([]*model.Movement, int, error)
	ListMovementsByFlight(ctx context.Context, flightID string) ([]*model.Movement, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
