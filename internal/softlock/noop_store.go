package softlock

import (
	"context"
	"time"
)

// NoopStore is used when redis is disabled: every acquire succeeds and no
// marker is ever observed.
type NoopStore struct{}

func (NoopStore) Acquire(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (NoopStore) Release(context.Context, string, string) (bool, error) {
	return true, nil
}

func (NoopStore) Get(context.Context, string) (string, time.Duration, error) {
	return "", 0, nil
}
