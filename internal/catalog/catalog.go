package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/store"
)

// CategoryDeletePolicy decides what happens to products when their category
// is deleted.
type CategoryDeletePolicy string

const (
	// PolicyNullify clears the category of referencing products.
	PolicyNullify CategoryDeletePolicy = "nullify"

	// PolicyRestrict refuses to delete a category that products still use.
	PolicyRestrict CategoryDeletePolicy = "restrict"
)

// ParseCategoryDeletePolicy accepts "nullify", "restrict" or "" (nullify).
func ParseCategoryDeletePolicy(s string) (CategoryDeletePolicy, error) {
	switch CategoryDeletePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyNullify:
		return PolicyNullify, nil
	case PolicyRestrict:
		return PolicyRestrict, nil
	default:
		return "", fmt.Errorf("unknown category delete policy %q (want nullify or restrict)", s)
	}
}

// Service is the catalog entry point.
type Service struct {
	opener store.Opener
	policy CategoryDeletePolicy
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDeletePolicy sets the category delete policy.
func WithDeletePolicy(p CategoryDeletePolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock replaces time.Now for created_at/updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a catalog service over opener.
func NewService(opener store.Opener, opts ...Option) *Service {
	s := &Service{
		opener: opener,
		policy: PolicyNullify,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the category delete policy in effect.
func (s *Service) Policy() CategoryDeletePolicy {
	return s.policy
}

func (s *Service) withStore(ctx context.Context, fn func(*store.Store) error) error {
	st, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func (s *Service) stamp() store.Time {
	return store.NewTime(s.now())
}
