package rbac

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// AllPermissions grants a catalog role every permission of the catalog
const AllPermissions = "*"

// Catalog is the declarative list of permission categories, permissions and
// default roles synchronized into the database at start-up.
type Catalog struct {
	Categories []CatalogCategory `yaml:"categories"`
	Roles      []CatalogRole     `yaml:"roles"`
}

// CatalogCategory is a category with its permissions
type CatalogCategory struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Permissions []CatalogPermission `yaml:"permissions"`
}

// CatalogPermission describes one permission
type CatalogPermission struct {
	Action      string `yaml:"action"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// CatalogRole describes a default role
type CatalogRole struct {
	Type        RoleType `yaml:"type"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// LoadCatalog decodes and validates a YAML catalog
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode permission catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// Validate normalizes actions and checks references between roles and permissions
func (c *Catalog) Validate() error {
	known := make(map[string]struct{})
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.Name == "" {
			return fmt.Errorf("permission category %d has no name", i)
		}
		for j := range cat.Permissions {
			p := &cat.Permissions[j]
			p.Action = NormalizeAction(p.Action)
			if p.Action == "" {
				return fmt.Errorf("permission %d of category %s has no action", j, cat.Name)
			}
			if _, dup := known[p.Action]; dup {
				return fmt.Errorf("duplicate permission action %s", p.Action)
			}
			known[p.Action] = struct{}{}
		}
	}

	types := make(map[RoleType]struct{})
	for i := range c.Roles {
		r := &c.Roles[i]
		if !r.Type.Valid() {
			return fmt.Errorf("unknown role type %q", r.Type)
		}
		if _, dup := types[r.Type]; dup {
			return fmt.Errorf("duplicate role type %s", r.Type)
		}
		types[r.Type] = struct{}{}
		for j, a := range r.Permissions {
			if a == AllPermissions {
				continue
			}
			a = NormalizeAction(a)
			if _, ok := known[a]; !ok {
				return fmt.Errorf("role %s references unknown permission %s", r.Type, a)
			}
			r.Permissions[j] = a
		}
	}
	return nil
}

// Actions returns every permission action of the catalog
func (c *Catalog) Actions() []string {
	var actions []string
	for _, cat := range c.Categories {
		for _, p := range cat.Permissions {
			actions = append(actions, p.Action)
		}
	}
	return actions
}

// RolePermissions expands the permission list of role
func (c *Catalog) RolePermissions(role CatalogRole) []string {
	for _, a := range role.Permissions {
		if a == AllPermissions {
			return c.Actions()
		}
	}
	return normalizeActions(role.Permissions)
}
