package domain

import "context"

type usageKey struct{}

// RequestUsage collects embedding token usage for a single HTTP request.
// The handler stores a pointer in the context, embedders add to it,
// and the handler reports it in the X-Embedding-Tokens header.
type RequestUsage struct {
	TotalTokens int
	Used        bool
}

// NewContextWithUsage returns a context with an empty usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(usageKey{}).(*RequestUsage)
	return u
}

// AddTokens records consumed tokens. Safe on a nil receiver.
func (u *RequestUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.Used = true
	u.TotalTokens += n
}
