package repository

import "context"

type epochKey struct{}

// ContextWithEpoch tags ctx with the epoch being processed so outbound messages can be
// correlated.
func ContextWithEpoch(ctx context.Context, epoch int64) context.Context {
	return context.WithValue(ctx, epochKey{}, epoch)
}

// EpochFromContext returns the epoch set by ContextWithEpoch.
func EpochFromContext(ctx context.Context) (int64, bool) {
	e, ok := ctx.Value(epochKey{}).(int64)
	return e, ok
}
