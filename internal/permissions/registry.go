package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/campushq/rolegate/internal/models"
)

// Category groups permissions by platform area.
type Category string

const (
	CategoryContent        Category = "content"
	CategoryUserManagement Category = "user_management"
	CategoryAnalytics      Category = "analytics"
	CategorySystem         Category = "system"
)

// Scope is the boundary within which a permission grant is valid.
type Scope string

const (
	ScopeSelf        Scope = "self"
	ScopeDepartment  Scope = "department"
	ScopeInstitution Scope = "institution"
	ScopeSystem      Scope = "system"
)

// Definition describes a catalog permission: its identifier, category, scope
// and the roles granted the permission by default. Definitions are immutable
// once registered.
type Definition struct {
	ID          string
	Category    Category
	Scope       Scope
	Description string
	Roles       []models.Role
}

type catalog struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

var globalCatalog = &catalog{
	definitions: make(map[string]*Definition),
}

var (
	errNilDefinition = errors.New("permission: nil definition")
	errEmptyID       = errors.New("permission: id is required")
	errDuplicateID   = errors.New("permission: already registered")
	errUnknownScope  = errors.New("permission: unknown scope")
	errUnknownRole   = errors.New("permission: unknown role in grant list")
)

// Register adds a permission definition to the catalog.
func Register(def *Definition) error {
	if def == nil {
		return errNilDefinition
	}

	id := strings.TrimSpace(def.ID)
	if id == "" {
		return errEmptyID
	}

	switch def.Scope {
	case ScopeSelf, ScopeDepartment, ScopeInstitution, ScopeSystem:
	default:
		return fmt.Errorf("%w: %q", errUnknownScope, def.Scope)
	}

	for _, role := range def.Roles {
		if !role.IsValid() {
			return fmt.Errorf("%w: %q on %s", errUnknownRole, role, id)
		}
	}

	cp := cloneDefinition(def)
	cp.ID = id

	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()

	if _, exists := globalCatalog.definitions[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, id)
	}

	globalCatalog.definitions[id] = cp
	return nil
}

// Get returns a copy of the definition when registered.
func Get(id string) (*Definition, bool) {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	def, ok := globalCatalog.definitions[id]
	if !ok {
		return nil, false
	}
	return cloneDefinition(def), true
}

// GetAll returns a copy of all registered definitions keyed by ID.
func GetAll() map[string]*Definition {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	out := make(map[string]*Definition, len(globalCatalog.definitions))
	for id, def := range globalCatalog.definitions {
		out[id] = cloneDefinition(def)
	}
	return out
}

// GetByCategory gathers definitions registered under the specified category.
func GetByCategory(category Category) []*Definition {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	var defs []*Definition
	for _, def := range globalCatalog.definitions {
		if def.Category == category {
			defs = append(defs, cloneDefinition(def))
		}
	}
	sortDefinitions(defs)
	return defs
}

// GrantedTo returns the definitions granted by default to the supplied role.
func GrantedTo(role models.Role) []*Definition {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	var defs []*Definition
	for _, def := range globalCatalog.definitions {
		if grantsRole(def, role) {
			defs = append(defs, cloneDefinition(def))
		}
	}
	sortDefinitions(defs)
	return defs
}

// RolePermissionIDs returns the sorted permission identifiers granted to role.
func RolePermissionIDs(role models.Role) []string {
	defs := GrantedTo(role)
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	return ids
}

func grantsRole(def *Definition, role models.Role) bool {
	for _, granted := range def.Roles {
		if granted == role {
			return true
		}
	}
	return false
}

func cloneDefinition(def *Definition) *Definition {
	if def == nil {
		return nil
	}

	cp := *def
	if len(def.Roles) > 0 {
		cp.Roles = append([]models.Role(nil), def.Roles...)
	}
	return &cp
}

func sortDefinitions(defs []*Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}
