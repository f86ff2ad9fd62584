// File: internal/fetcher/limiter.go
package fetcher

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// LimiterSet holds one token bucket per rate-limited source, created on
// first use with a burst of one.
type LimiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiterSet creates an empty set.
func NewLimiterSet() *LimiterSet {
	return &LimiterSet{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until spec may issue another request. Specs without a rate
// limit never block. The error is non-nil only when ctx ends first.
func (s *LimiterSet) Wait(ctx context.Context, spec schemas.SourceSpec) error {
	if spec.RateLimit <= 0 {
		return nil
	}
	return s.limiter(spec).Wait(ctx)
}

func (s *LimiterSet) limiter(spec schemas.SourceSpec) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[spec.ID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(spec.RateLimit), 1)
		s.limiters[spec.ID] = l
	}
	return l
}
