package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
)

// PostgresSchemaRepository implements SchemaRepository using PostgreSQL.
type PostgresSchemaRepository struct {
	db *sql.DB
}

// NewPostgresSchemaRepository creates a new PostgreSQL schema repository.
func NewPostgresSchemaRepository(db *sql.DB) repositories.SchemaRepository {
	return &PostgresSchemaRepository{db: db}
}

// LoadEntities fetches all entity definitions for a tenant scope, with
// properties, options, attributes, relationships, views and workflow states
// populated in declaration order.
func (r *PostgresSchemaRepository) LoadEntities(ctx context.Context, tenantScope string) ([]*entities.Entity, error) {
	query := `
		SELECT id, name, title, slug, has_workflow, has_tags, dynamic
		FROM entities
		WHERE tenant_scope = $1 OR tenant_scope = ''
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, tenantScope)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var result []*entities.Entity
	byID := make(map[string]*entities.Entity)
	for rows.Next() {
		e := &entities.Entity{}
		if err := rows.Scan(&e.ID, &e.Name, &e.Title, &e.Slug, &e.HasWorkflow, &e.HasTags, &e.Dynamic); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		result = append(result, e)
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(result))
	for _, e := range result {
		ids = append(ids, e.ID)
	}

	if err := r.loadProperties(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.loadRelationships(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.loadViews(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.loadWorkflowStates(ctx, ids, byID); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresSchemaRepository) loadProperties(ctx context.Context, entityIDs []string, byID map[string]*entities.Entity) error {
	query := `
		SELECT id, entity_id, name, title, type, subtype, required, read_only, hidden,
		       ord, formula_result_type, dynamic, col
		FROM properties
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, ord
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	byProp := make(map[string]*entities.Property)
	for rows.Next() {
		p := &entities.Property{Attributes: map[string]string{}}
		var formulaType, column sql.NullString
		if err := rows.Scan(&p.ID, &p.EntityID, &p.Name, &p.Title, &p.Type, &p.Subtype,
			&p.Required, &p.ReadOnly, &p.Hidden, &p.Order, &formulaType, &p.Dynamic, &column); err != nil {
			return fmt.Errorf("failed to scan property: %w", err)
		}
		if formulaType.Valid {
			p.FormulaResultType = entities.PropertyType(formulaType.String)
		}
		if column.Valid {
			p.Column = column.String
		}
		if e, ok := byID[p.EntityID]; ok {
			e.Properties = append(e.Properties, p)
		}
		byProp[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate properties: %w", err)
	}

	if err := r.loadOptions(ctx, entityIDs, byProp); err != nil {
		return err
	}
	return r.loadAttributes(ctx, entityIDs, byProp)
}

func (r *PostgresSchemaRepository) loadOptions(ctx context.Context, entityIDs []string, byProp map[string]*entities.Property) error {
	query := `
		SELECT o.property_id, o.value, o.name, o.color, o.ord
		FROM property_options o
		JOIN properties p ON p.id = o.property_id
		WHERE p.entity_id = ANY($1)
		ORDER BY o.property_id, o.ord
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query property options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var propID string
		o := &entities.Option{}
		if err := rows.Scan(&propID, &o.Value, &o.Name, &o.Color, &o.Order); err != nil {
			return fmt.Errorf("failed to scan property option: %w", err)
		}
		if p, ok := byProp[propID]; ok {
			p.Options = append(p.Options, o)
		}
	}
	return rows.Err()
}

func (r *PostgresSchemaRepository) loadAttributes(ctx context.Context, entityIDs []string, byProp map[string]*entities.Property) error {
	query := `
		SELECT a.property_id, a.key, a.value
		FROM property_attributes a
		JOIN properties p ON p.id = a.property_id
		WHERE p.entity_id = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query property attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var propID, key, value string
		if err := rows.Scan(&propID, &key, &value); err != nil {
			return fmt.Errorf("failed to scan property attribute: %w", err)
		}
		if p, ok := byProp[propID]; ok {
			p.Attributes[key] = value
		}
	}
	return rows.Err()
}

func (r *PostgresSchemaRepository) loadRelationships(ctx context.Context, entityIDs []string, byID map[string]*entities.Entity) error {
	query := `
		SELECT id, parent_entity_id, child_entity_id, role, single_cardinality,
		       read_only, hidden_if_empty, picker_view_id, ord
		FROM entity_relationships
		WHERE parent_entity_id = ANY($1) OR child_entity_id = ANY($1)
		ORDER BY ord
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query entity relationships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rel := &entities.EntityRelationship{}
		var pickerView sql.NullString
		if err := rows.Scan(&rel.ID, &rel.ParentEntityID, &rel.ChildEntityID, &rel.Role,
			&rel.Single, &rel.ReadOnly, &rel.HiddenIfEmpty, &pickerView, &rel.Order); err != nil {
			return fmt.Errorf("failed to scan entity relationship: %w", err)
		}
		if pickerView.Valid {
			rel.PickerViewID = pickerView.String
		}
		if e, ok := byID[rel.ParentEntityID]; ok {
			e.ParentRelationships = append(e.ParentRelationships, rel)
		}
		if e, ok := byID[rel.ChildEntityID]; ok {
			e.ChildRelationships = append(e.ChildRelationships, rel)
		}
	}
	return rows.Err()
}

func (r *PostgresSchemaRepository) loadViews(ctx context.Context, entityIDs []string, byID map[string]*entities.Entity) error {
	query := `
		SELECT id, entity_id, name, property_names, ord
		FROM views
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, ord
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v := &entities.View{}
		var entityID string
		if err := rows.Scan(&v.ID, &entityID, &v.Name, pq.Array(&v.PropertyNames), &v.Order); err != nil {
			return fmt.Errorf("failed to scan view: %w", err)
		}
		if e, ok := byID[entityID]; ok {
			e.Views = append(e.Views, v)
		}
	}
	return rows.Err()
}

func (r *PostgresSchemaRepository) loadWorkflowStates(ctx context.Context, entityIDs []string, byID map[string]*entities.Entity) error {
	query := `
		SELECT id, entity_id, name, color, ord, initial
		FROM workflow_states
		WHERE entity_id = ANY($1)
		ORDER BY entity_id, ord
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("failed to query workflow states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s := &entities.WorkflowState{}
		var entityID string
		if err := rows.Scan(&s.ID, &entityID, &s.Name, &s.Color, &s.Order, &s.Initial); err != nil {
			return fmt.Errorf("failed to scan workflow state: %w", err)
		}
		if e, ok := byID[entityID]; ok {
			e.WorkflowStates = append(e.WorkflowStates, s)
		}
	}
	return rows.Err()
}
