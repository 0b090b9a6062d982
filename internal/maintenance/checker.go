package maintenance

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
)

// CheckResult contains the result of checking a host against active maintenance windows.
type CheckResult struct {
	InMaintenance bool
	Window        *Window
	Match         *MatchResult
}

// Checker determines whether hosts are in maintenance.
type Checker interface {
	// Check returns the first active window covering host at the given time.
	Check(ctx context.Context, host *catalog.Host, at time.Time) (*CheckResult, error)

	// CheckAll returns every active window covering host at the given time.
	CheckAll(ctx context.Context, host *catalog.Host, at time.Time) ([]*CheckResult, error)

	// HostInMaintenance reports whether any active window covers host.
	HostInMaintenance(ctx context.Context, host *catalog.Host, at time.Time) (bool, error)
}

// DefaultChecker implements Checker on top of a Store.
type DefaultChecker struct {
	store   Store
	matcher *Matcher
	cache   *gocache.Cache
	logger  zerolog.Logger
}

// CheckerOption configures a DefaultChecker.
type CheckerOption func(*DefaultChecker)

// WithCacheTTL caches active window lists per second of evaluation time.
func WithCacheTTL(ttl time.Duration) CheckerOption {
	return func(c *DefaultChecker) {
		if ttl > 0 {
			c.cache = gocache.New(ttl, 2*ttl)
		}
	}
}

// NewChecker creates a DefaultChecker.
func NewChecker(store Store, logger zerolog.Logger, opts ...CheckerOption) *DefaultChecker {
	c := &DefaultChecker{
		store:   store,
		matcher: NewMatcher(),
		logger:  logger.With().Str("component", "maintenance-checker").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns the first active window covering host, or a result with
// InMaintenance false.
func (c *DefaultChecker) Check(ctx context.Context, host *catalog.Host, at time.Time) (*CheckResult, error) {
	windows, err := c.activeWindows(ctx, at)
	if err != nil {
		return nil, err
	}

	for _, w := range windows {
		match := c.matcher.Match(host, w)
		if match.Matched {
			c.logger.Debug().
				Uint64("host_id", host.ID).
				Uint64("maintenance_id", w.ID).
				Str("match_type", string(match.MatchType)).
				Msg("host is in maintenance")
			return &CheckResult{InMaintenance: true, Window: w, Match: match}, nil
		}
	}
	return &CheckResult{InMaintenance: false}, nil
}

// CheckAll returns every active window covering host.
func (c *DefaultChecker) CheckAll(ctx context.Context, host *catalog.Host, at time.Time) ([]*CheckResult, error) {
	windows, err := c.activeWindows(ctx, at)
	if err != nil {
		return nil, err
	}

	results := make([]*CheckResult, 0)
	for _, w := range windows {
		if match := c.matcher.Match(host, w); match.Matched {
			results = append(results, &CheckResult{InMaintenance: true, Window: w, Match: match})
		}
	}
	return results, nil
}

// HostInMaintenance reports whether any active window covers host.
func (c *DefaultChecker) HostInMaintenance(ctx context.Context, host *catalog.Host, at time.Time) (bool, error) {
	result, err := c.Check(ctx, host, at)
	if err != nil {
		return false, err
	}
	return result.InMaintenance, nil
}

func (c *DefaultChecker) activeWindows(ctx context.Context, at time.Time) ([]*Window, error) {
	key := fmt.Sprintf("active:%d", at.Unix())
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v.([]*Window), nil
		}
	}

	windows, err := c.store.ListActive(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("list active maintenances: %w", err)
	}
	if c.cache != nil {
		c.cache.SetDefault(key, windows)
	}
	return windows, nil
}

var _ Checker = (*DefaultChecker)(nil)
