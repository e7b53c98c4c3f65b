package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
)

// PostgresTenantRepository implements TenantRepository using PostgreSQL.
type PostgresTenantRepository struct {
	db *sql.DB
}

// NewPostgresTenantRepository creates a new PostgreSQL tenant repository.
func NewPostgresTenantRepository(db *sql.DB) repositories.TenantRepository {
	return &PostgresTenantRepository{db: db}
}

// GetTenant returns the tenant with the given ID.
func (r *PostgresTenantRepository) GetTenant(ctx context.Context, id string) (*entities.Tenant, error) {
	t := &entities.Tenant{}
	var typeID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, type_id FROM tenants WHERE id = $1`, id).Scan(&t.ID, &t.Name, &typeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", id, entities.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.TypeID = ptr(typeID)
	return t, nil
}

// ListUserTenants returns the IDs of all tenants the user belongs to.
func (r *PostgresTenantRepository) ListUserTenants(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id FROM tenant_users WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user tenant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user tenants: %w", err)
	}
	return ids, nil
}

// ListRelationships returns the links from any of fromTenantIDs to toTenantID.
func (r *PostgresTenantRepository) ListRelationships(ctx context.Context, fromTenantIDs []string, toTenantID string) ([]*entities.TenantRelationship, error) {
	if len(fromTenantIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, from_tenant_id, to_tenant_id, type_relationship_id
		FROM tenant_relationships
		WHERE from_tenant_id = ANY($1) AND to_tenant_id = $2
	`, pq.Array(fromTenantIDs), toTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant relationships: %w", err)
	}
	defer rows.Close()

	var result []*entities.TenantRelationship
	for rows.Next() {
		rel := &entities.TenantRelationship{}
		if err := rows.Scan(&rel.ID, &rel.FromTenantID, &rel.ToTenantID, &rel.TypeRelationshipID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant relationship: %w", err)
		}
		result = append(result, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenant relationships: %w", err)
	}
	return result, nil
}

// GetTypeRelationship returns the declaration a link was created under.
func (r *PostgresTenantRepository) GetTypeRelationship(ctx context.Context, id string) (*entities.TenantTypeRelationship, error) {
	tr := &entities.TenantTypeRelationship{}
	var fromType, toType sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, from_type_id, to_type_id, linkable, permissions
		FROM tenant_type_relationships
		WHERE id = $1
	`, id).Scan(&tr.ID, &fromType, &toType, &tr.Linkable, pq.Array(&tr.Permissions))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant type relationship %s: %w", id, entities.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tenant type relationship: %w", err)
	}
	tr.FromTypeID = ptr(fromType)
	tr.ToTypeID = ptr(toType)
	return tr, nil
}
