package advisory

import (
	"context"
	"time"
)

// UsageRepository meters analysis calls per actor per UTC day.
type UsageRepository interface {
	// Increment bumps the actor's counter for the day and returns the new
	// count. The bump is atomic; concurrent calls never read a stale count.
	Increment(ctx context.Context, actorID string, day time.Time) (int, error)
	// Count returns the actor's current count for the day.
	Count(ctx context.Context, actorID string, day time.Time) (int, error)
}
