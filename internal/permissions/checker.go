package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campushq/rolegate/internal/cache"
	"github.com/campushq/rolegate/internal/models"
	"github.com/campushq/rolegate/pkg/metrics"
)

// Config controls checker behaviour. Zero values fall back to safe defaults.
type Config struct {
	CacheEnabled   bool
	CacheTTL       time.Duration
	BulkCheckLimit int
}

const (
	defaultCacheTTL       = 5 * time.Minute
	defaultBulkCheckLimit = 50
)

// Checker evaluates user permissions against the catalog and the user's
// active role assignments. It owns an injected cache store; no module-level
// cache state exists.
type Checker struct {
	db    *gorm.DB
	store cache.Store
	cfg   Config
	now   func() time.Time
}

// ErrBulkLimitExceeded is returned before any evaluation when a bulk check
// carries more entries than the configured limit.
var ErrBulkLimitExceeded = errors.New("permission checker: bulk check limit exceeded")

// NewChecker constructs a permission checker backed by the provided database.
// When caching is enabled and no store is supplied, an in-process store is used.
func NewChecker(db *gorm.DB, store cache.Store, cfg Config) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.BulkCheckLimit <= 0 {
		cfg.BulkCheckLimit = defaultBulkCheckLimit
	}
	if cfg.CacheEnabled && store == nil {
		store = cache.NewMemoryStore()
	}
	return &Checker{db: db, store: store, cfg: cfg, now: time.Now}, nil
}

// HasPermission determines whether the user holds the permission in the given
// resource context. Unknown users and unknown permissions resolve to false;
// only storage failures surface as errors.
func (c *Checker) HasPermission(ctx context.Context, userID, permissionID string, rc *ResourceContext) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	permissionID = strings.TrimSpace(permissionID)
	if userID == "" || permissionID == "" {
		return false, nil
	}

	key := cacheKey(userID, permissionID, rc)
	if c.cacheEnabled() {
		if value, ok, err := c.store.Get(ctx, key); err == nil && ok {
			metrics.PermissionCache.WithLabelValues("hit").Inc()
			return string(value) == "1", nil
		}
		metrics.PermissionCache.WithLabelValues("miss").Inc()
	}

	granted, err := c.evaluate(ctx, userID, permissionID, rc)
	if err != nil {
		return false, err
	}

	if c.cacheEnabled() {
		value := []byte("0")
		if granted {
			value = []byte("1")
		}
		_ = c.store.Set(ctx, key, value, c.cfg.CacheTTL)
	}

	return granted, nil
}

func (c *Checker) evaluate(ctx context.Context, userID, permissionID string, rc *ResourceContext) (bool, error) {
	def, ok := Get(permissionID)
	if !ok {
		return false, nil
	}

	assignments, err := c.activeAssignments(ctx, userID)
	if err != nil {
		return false, err
	}

	now := c.now()
	for i := range assignments {
		assignment := &assignments[i]
		if !assignment.UsableAt(now) {
			continue
		}
		if !grantsRole(def, assignment.Role) {
			continue
		}
		if scopeSatisfied(def.Scope, assignment, userID, rc) {
			return true, nil
		}
	}
	return false, nil
}

// CanAccessResource maps a CRUD-style action on a resource type to permission
// identifiers and grants access when the user holds any of them for that
// resource context.
func (c *Checker) CanAccessResource(ctx context.Context, userID, resourceID, resourceType string, action Action, rc *ResourceContext) (bool, error) {
	ids := PermissionsForAction(resourceType, action)
	if len(ids) == 0 {
		return false, nil
	}

	if rc == nil {
		rc = &ResourceContext{}
	}
	if rc.ResourceID == "" {
		rc.ResourceID = strings.TrimSpace(resourceID)
	}
	if rc.ResourceType == "" {
		rc.ResourceType = strings.ToLower(strings.TrimSpace(resourceType))
	}

	for _, id := range ids {
		granted, err := c.HasPermission(ctx, userID, id, rc)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// GetUserPermissions aggregates the permissions granted across all of the
// user's currently usable assignments, de-duplicated by identifier.
func (c *Checker) GetUserPermissions(ctx context.Context, userID string) ([]*Definition, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("permission checker: user id is required")
	}

	assignments, err := c.activeAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	seen := make(map[string]*Definition)
	for i := range assignments {
		assignment := &assignments[i]
		if !assignment.UsableAt(now) {
			continue
		}
		for _, def := range GrantedTo(assignment.Role) {
			if _, exists := seen[def.ID]; !exists {
				seen[def.ID] = def
			}
		}
	}

	defs := make([]*Definition, 0, len(seen))
	for _, def := range seen {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

// BulkCheck is a single entry of a bulk permission evaluation.
type BulkCheck struct {
	Permission string           `json:"permission"`
	Context    *ResourceContext `json:"context,omitempty"`
}

// BulkResult reports the outcome of one bulk entry. Reason is populated at
// least for denials.
type BulkResult struct {
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason,omitempty"`
}

// CheckBulk evaluates each check independently. The configured limit is
// enforced before any evaluation; a failure on one entry never aborts the
// others.
func (c *Checker) CheckBulk(ctx context.Context, userID string, checks []BulkCheck) ([]BulkResult, error) {
	if len(checks) > c.cfg.BulkCheckLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrBulkLimitExceeded, len(checks), c.cfg.BulkCheckLimit)
	}

	results := make([]BulkResult, 0, len(checks))
	for _, check := range checks {
		result := BulkResult{Permission: check.Permission}

		granted, err := c.HasPermission(ctx, userID, check.Permission, check.Context)
		switch {
		case err != nil:
			result.Reason = err.Error()
		case granted:
			result.Granted = true
		default:
			result.Reason = c.denialReason(check.Permission)
		}

		results = append(results, result)
	}
	return results, nil
}

func (c *Checker) denialReason(permissionID string) string {
	if _, ok := Get(strings.TrimSpace(permissionID)); !ok {
		return "unknown permission"
	}
	return "permission not granted"
}

// IsAdmin reports whether any usable assignment makes the user an admin at or
// above the requested scope level.
func (c *Checker) IsAdmin(ctx context.Context, userID string, scope Scope, scopeID string) (bool, error) {
	ctx = ensureContext(ctx)

	assignments, err := c.activeAssignments(ctx, userID)
	if err != nil {
		return false, err
	}

	now := c.now()
	for i := range assignments {
		assignment := &assignments[i]
		if !assignment.UsableAt(now) {
			continue
		}
		if adminSatisfies(assignment, scope, strings.TrimSpace(scopeID)) {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateUserCache removes every cache entry scoped to the user. Safe to
// call when caching is disabled.
func (c *Checker) InvalidateUserCache(ctx context.Context, userID string) error {
	if !c.cacheEnabled() {
		return nil
	}
	return c.store.DeletePrefix(ensureContext(ctx), userCachePrefix(strings.TrimSpace(userID)))
}

// ClearCache removes all cached permission results. Safe to call when caching
// is disabled.
func (c *Checker) ClearCache(ctx context.Context) error {
	if !c.cacheEnabled() {
		return nil
	}
	return c.store.Flush(ensureContext(ctx))
}

func (c *Checker) cacheEnabled() bool {
	return c.cfg.CacheEnabled && c.store != nil
}

func (c *Checker) activeAssignments(ctx context.Context, userID string) ([]models.UserRoleAssignment, error) {
	var assignments []models.UserRoleAssignment
	if err := c.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.AssignmentActive).
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load assignments: %w", err)
	}
	return assignments, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
