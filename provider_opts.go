package archivefs

import (
	"log/slog"
	"time"

	"github.com/coldview/archivefs/resolve"
)

// Option configures a Provider.
type Option func(*Provider)

// WithResolver injects a resolver. When set, WithCacheCapacity has no effect.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Provider) {
		p.resolver = r
	}
}

// WithCacheCapacity bounds the number of resident archive indexes in the
// default resolver. A capacity of 0 or less means unbounded.
func WithCacheCapacity(n int) Option {
	return func(p *Provider) {
		p.capacity = n
	}
}

// WithDebounceDelay sets the window over which change records are coalesced
// into one batched emission.
func WithDebounceDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
	}
}

// WithChangeHandler sets the handler receiving batched change records.
// Without a handler, batches are discarded.
func WithChangeHandler(h ChangeHandler) Option {
	return func(p *Provider) {
		p.handler = h
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}
