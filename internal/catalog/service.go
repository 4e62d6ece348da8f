package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Source abstracts the backing store.
type Source interface {
	Roles(ctx context.Context) ([]Role, error)
	Suppliers(ctx context.Context) ([]Supplier, error)
	Codes(ctx context.Context, kind string) ([]LabeledCode, error)
}

const (
	// CodeKindCancelReason enumerates job cancellation reasons.
	CodeKindCancelReason = "cancel_reason"
	// CodeKindIssueType enumerates delivery/measure problem types.
	CodeKindIssueType = "issue_type"
	// CodeKindFaultSource enumerates fault sources for issue reports.
	CodeKindFaultSource = "fault_source"
)

// Service caches reference data in Redis. The data is treated as a static
// lookup table refreshed at session start; concurrent refreshes for the same
// key are coalesced.
type Service struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewService constructs Service. cache may be nil, in which case every call
// goes to the source.
func NewService(source Source, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{source: source, cache: cache, ttl: ttl}
}

func cacheKey(section string) string {
	return "catalog:" + section
}

func fetchCached[T any](ctx context.Context, s *Service, section string, load func(context.Context) ([]T, error)) ([]T, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(section)).Bytes()
		if err == nil {
			var out []T
			if err := json.Unmarshal(raw, &out); err == nil {
				return out, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return load(ctx)
		}
	}
	v, err, _ := s.group.Do(section, func() (any, error) {
		items, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(items); err == nil {
				_ = s.cache.Set(ctx, cacheKey(section), raw, s.ttl).Err()
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// Roles returns all work roles.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return fetchCached(ctx, s, "roles", s.source.Roles)
}

// Role returns one role by id.
func (s *Service) Role(ctx context.Context, roleID string) (Role, error) {
	roles, err := s.Roles(ctx)
	if err != nil {
		return Role{}, err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
}

// Suppliers returns all suppliers.
func (s *Service) Suppliers(ctx context.Context) ([]Supplier, error) {
	return fetchCached(ctx, s, "suppliers", s.source.Suppliers)
}

// DefaultSupplier resolves the default supplier for a role, if configured.
func (s *Service) DefaultSupplier(ctx context.Context, roleID string) (Supplier, bool, error) {
	role, err := s.Role(ctx, roleID)
	if err != nil {
		return Supplier{}, false, err
	}
	if role.DefaultSupplierID == "" {
		return Supplier{}, false, nil
	}
	suppliers, err := s.Suppliers(ctx)
	if err != nil {
		return Supplier{}, false, err
	}
	for _, sup := range suppliers {
		if sup.ID == role.DefaultSupplierID {
			return sup, true, nil
		}
	}
	return Supplier{}, false, nil
}

// Codes returns one enumeration set.
func (s *Service) Codes(ctx context.Context, kind string) ([]LabeledCode, error) {
	return fetchCached(ctx, s, "codes:"+kind, func(ctx context.Context) ([]LabeledCode, error) {
		return s.source.Codes(ctx, kind)
	})
}

// Label resolves a code's display label. Unknown codes fall back to the
// generic label rather than failing.
func (s *Service) Label(ctx context.Context, kind, code string) string {
	codes, err := s.Codes(ctx, kind)
	if err != nil {
		return GenericLabel
	}
	for _, c := range codes {
		if c.Code == code {
			return c.Label
		}
	}
	return GenericLabel
}

// KnownCode reports whether the code exists in the given enumeration.
func (s *Service) KnownCode(ctx context.Context, kind, code string) bool {
	codes, err := s.Codes(ctx, kind)
	if err != nil {
		return false
	}
	for _, c := range codes {
		if c.Code == code {
			return true
		}
	}
	return false
}
