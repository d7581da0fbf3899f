package state

import "context"

// Store is the bot's durable key/value state: placed-batch dedup markers,
// the hedge venue's last-used nonce, and the performance recorder's
// cumulative-volume seed all live here so restarts pick up where the prior
// run left off.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
