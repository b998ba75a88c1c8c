package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// PermissionStore handles permission and category persistence
type PermissionStore struct {
	db *sql.DB
}

// NewPermissionStore creates a new permission store
func NewPermissionStore(db *sql.DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// FindByActions returns the live permissions whose action is one of actions.
// Actions are normalized before matching.
func (s *PermissionStore) FindByActions(ctx context.Context, actions []string) ([]Permission, error) {
	actions = normalizeActions(actions)
	if len(actions) == 0 {
		return []Permission{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, name, description, action, permission_category_id, version
		FROM permissions
		WHERE archived_at IS NULL AND action IN (%s)
		ORDER BY action
	`, placeholders(1, len(actions)))

	args := make([]interface{}, len(actions))
	for i, a := range actions {
		args[i] = a
	}

	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find permissions: %w", err)
	}
	defer rows.Close()

	return scanPermissions(rows)
}

// UpsertCategory creates the category or refreshes its description; category.ID is
// set to the stored id.
func (s *PermissionStore) UpsertCategory(ctx context.Context, category *PermissionCategory) error {
	query := `
		INSERT INTO permission_categories (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
		RETURNING id
	`

	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, query,
		uuid.NewString(), category.Name, category.Description,
	).Scan(&category.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert permission category %s: %w", category.Name, err)
	}
	return nil
}

// UpsertPermission creates the permission or refreshes it, keyed by its normalized
// action; permission.ID is set to the stored id.
func (s *PermissionStore) UpsertPermission(ctx context.Context, permission *Permission) error {
	permission.Action = NormalizeAction(permission.Action)
	if permission.Action == "" {
		return errors.New("permission action is required")
	}

	query := `
		INSERT INTO permissions (id, name, description, action, permission_category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (action) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    permission_category_id = EXCLUDED.permission_category_id,
		    updated_at = NOW()
		RETURNING id
	`

	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, query,
		uuid.NewString(), permission.Name, permission.Description, permission.Action, permission.CategoryID,
	).Scan(&permission.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert permission %s: %w", permission.Action, err)
	}
	return nil
}

// SyncCatalog makes the database hold every category and permission of catalog and
// a default role per catalog role with at least its listed permissions. It is
// idempotent and runs in a single transaction.
func (s *PermissionStore) SyncCatalog(ctx context.Context, catalog *Catalog) error {
	roles := NewRoleStore(s.db)
	logger := observability.FromContext(ctx)

	return postgres.NewTransactor(s.db).InTx(ctx, func(ctx context.Context) error {
		byAction := make(map[string]string)
		for _, c := range catalog.Categories {
			category := &PermissionCategory{Name: c.Name, Description: c.Description}
			if err := s.UpsertCategory(ctx, category); err != nil {
				return err
			}
			for _, p := range c.Permissions {
				perm := &Permission{
					Name:        p.Name,
					Description: p.Description,
					Action:      p.Action,
					CategoryID:  category.ID,
				}
				if err := s.UpsertPermission(ctx, perm); err != nil {
					return err
				}
				byAction[perm.Action] = perm.ID
			}
		}

		for _, cr := range catalog.Roles {
			role, err := roles.FindDefaultByType(ctx, cr.Type)
			if errors.Is(err, postgres.ErrNotFound) {
				roleType := cr.Type
				role = &Role{Name: cr.Name, Description: cr.Description, RoleType: &roleType}
				if err := roles.Create(ctx, role); err != nil {
					return err
				}
				logger.WithField("role_type", cr.Type).Info("created default role")
			} else if err != nil {
				return err
			}

			actions := catalog.RolePermissions(cr)
			ids := make([]string, 0, len(actions))
			for _, a := range actions {
				ids = append(ids, byAction[a])
			}
			if err := roles.AddPermissions(ctx, role.ID, ids); err != nil {
				return err
			}
		}

		logger.WithFields(map[string]interface{}{
			"permissions": len(byAction),
			"roles":       len(catalog.Roles),
		}).Info("permission catalog synchronized")
		return nil
	})
}
