package core

import (
	"context"
	"fmt"
	"sync"
)

// TokenMeter enforces a token ceiling for one worker task across all of its
// attempts. Workers charge it as they consume tokens; once the ceiling is
// crossed every further Charge fails with ErrBudgetExceeded. It also
// accumulates the USD cost of the task.
type TokenMeter struct {
	max  int
	used int
	cost float64
	mu   sync.Mutex
}

// NewTokenMeter creates a meter with the given ceiling.
// If max == 0, usage is tracked but never refused.
func NewTokenMeter(max int) *TokenMeter {
	return &TokenMeter{max: max}
}

// Charge records n consumed tokens and returns an error if the ceiling is exceeded.
func (m *TokenMeter) Charge(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > 0 {
		m.used += n
	}
	if m.max > 0 && m.used > m.max {
		return fmt.Errorf("%w: used %d of %d", ErrBudgetExceeded, m.used, m.max)
	}

	return nil
}

// Used returns the tokens charged so far.
func (m *TokenMeter) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.used
}

// AddCost records usd spent on the task. It never fails.
func (m *TokenMeter) AddCost(usd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if usd > 0 {
		m.cost += usd
	}
}

// Cost returns the USD recorded so far.
func (m *TokenMeter) Cost() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cost
}

// Remaining returns how many tokens are left before hitting the ceiling.
func (m *TokenMeter) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.max == 0 {
		return -1 // unlimited
	}

	if r := m.max - m.used; r > 0 {
		return r
	}
	return 0
}

type meterKey struct{}

// ContextWithMeter attaches m to ctx.
func ContextWithMeter(ctx context.Context, m *TokenMeter) context.Context {
	return context.WithValue(ctx, meterKey{}, m)
}

// MeterFromContext returns the meter attached to ctx, if any.
func MeterFromContext(ctx context.Context) (*TokenMeter, bool) {
	m, ok := ctx.Value(meterKey{}).(*TokenMeter)
	return m, ok && m != nil
}
