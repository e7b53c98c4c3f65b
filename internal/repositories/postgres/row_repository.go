package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
	"github.com/tesserahq/tessera/internal/repositories"
)

const rowColumns = `rows.id, rows.entity_id, rows.tenant_id, rows.created_by_user_id,
	rows.created_by_api_key, rows.workflow_state_id, rows.created_at, rows.updated_at`

// PostgresRowRepository implements RowRepository using PostgreSQL.
type PostgresRowRepository struct {
	db *sql.DB
}

// NewPostgresRowRepository creates a new PostgreSQL row repository.
func NewPostgresRowRepository(db *sql.DB) repositories.RowRepository {
	return &PostgresRowRepository{db: db}
}

func scanRow(scanner interface{ Scan(...interface{}) error }) (*entities.Row, error) {
	row := &entities.Row{}
	var tenantID, createdBy, workflowState sql.NullString
	err := scanner.Scan(&row.ID, &row.EntityID, &tenantID, &createdBy,
		&row.CreatedByAPIKey, &workflowState, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tenantID.Valid {
		row.TenantID = &tenantID.String
	}
	if createdBy.Valid {
		row.CreatedByUserID = &createdBy.String
	}
	if workflowState.Valid {
		row.WorkflowStateID = &workflowState.String
	}
	return row, nil
}

// FindRows returns rows of the entity matching the predicate tree plus the
// total count ignoring pagination.
func (r *PostgresRowRepository) FindRows(ctx context.Context, entityID string, pred query.Node, page repositories.Pagination) ([]*entities.Row, int, error) {
	paramCounter := 2
	args := []interface{}{entityID}
	where := "rows.entity_id = $1"
	if pred != nil {
		fragment, err := query.ToSQL(pred, &paramCounter, &args)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to render predicate: %w", err)
		}
		if fragment != "" {
			where += " AND (" + fragment + ")"
		}
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM rows WHERE " + where
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count rows: %w", err)
	}

	listSQL := fmt.Sprintf("SELECT %s FROM rows WHERE %s ORDER BY rows.created_at, rows.id", rowColumns, where)
	listArgs := args
	if page.Limit > 0 {
		listSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramCounter, paramCounter+1)
		listArgs = append(listArgs, page.Limit, page.Offset)
	}

	rs, err := r.db.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rs.Close()

	var result []*entities.Row
	for rs.Next() {
		row, err := scanRow(rs)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}
	if err := rs.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate rows: %w", err)
	}

	if err := r.populate(ctx, result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// GetRow returns the row with values, tags and grants populated.
func (r *PostgresRowRepository) GetRow(ctx context.Context, id string) (*entities.Row, error) {
	sqlStr := fmt.Sprintf("SELECT %s FROM rows WHERE rows.id = $1", rowColumns)
	row, err := scanRow(r.db.QueryRowContext(ctx, sqlStr, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("row %s: %w", id, entities.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get row: %w", err)
	}
	if err := r.populate(ctx, []*entities.Row{row}); err != nil {
		return nil, err
	}
	return row, nil
}

// CreateRow inserts a new row with its initial values in one transaction.
func (r *PostgresRowRepository) CreateRow(ctx context.Context, row *entities.Row) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = now
	row.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rows (id, entity_id, tenant_id, created_by_user_id, created_by_api_key,
		                  workflow_state_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, row.ID, row.EntityID, nullable(row.TenantID), nullable(row.CreatedByUserID),
		row.CreatedByAPIKey, nullable(row.WorkflowStateID), row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	for _, v := range row.Values {
		v.RowID = row.ID
		if err := upsertValueTx(ctx, tx, v); err != nil {
			return err
		}
	}
	for _, t := range row.Tags {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO row_tags (id, row_id, value) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			t.ID, row.ID, t.Value)
		if err != nil {
			return fmt.Errorf("failed to insert row tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit row: %w", err)
	}
	return nil
}

// UpsertRowValues writes the given value cells for one row in a single
// transaction, replacing each property's typed payload atomically.
func (r *PostgresRowRepository) UpsertRowValues(ctx context.Context, rowID string, values []*entities.RowValue) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range values {
		v.RowID = rowID
		if err := upsertValueTx(ctx, tx, v); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE rows SET updated_at = $1 WHERE id = $2`, time.Now(), rowID)
	if err != nil {
		return fmt.Errorf("failed to touch row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit row values: %w", err)
	}
	return nil
}

func upsertValueTx(ctx context.Context, tx *sql.Tx, v *entities.RowValue) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid row value: %w", err)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.UpdatedAt = time.Now()

	var rangeFromNum, rangeToNum sql.NullFloat64
	var rangeFromDate, rangeToDate sql.NullTime
	if v.Range != nil {
		rangeFromNum = nullFloat(v.Range.FromNumber)
		rangeToNum = nullFloat(v.Range.ToNumber)
		rangeFromDate = nullTime(v.Range.FromDate)
		rangeToDate = nullTime(v.Range.ToDate)
	}

	// The scalar columns are replaced wholesale; (row_id, property_id) is
	// unique so the conflict target rewrites the one active cell.
	err := tx.QueryRowContext(ctx, `
		INSERT INTO row_values (id, row_id, property_id, value_text, value_number,
		                        value_date, value_bool, range_from_number, range_to_number,
		                        range_from_date, range_to_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (row_id, property_id) DO UPDATE SET
			value_text = EXCLUDED.value_text,
			value_number = EXCLUDED.value_number,
			value_date = EXCLUDED.value_date,
			value_bool = EXCLUDED.value_bool,
			range_from_number = EXCLUDED.range_from_number,
			range_to_number = EXCLUDED.range_to_number,
			range_from_date = EXCLUDED.range_from_date,
			range_to_date = EXCLUDED.range_to_date,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, v.ID, v.RowID, v.PropertyID, nullable(v.Text), nullFloat(v.Number),
		nullTime(v.Date), nullBool(v.Bool), rangeFromNum, rangeToNum,
		rangeFromDate, rangeToDate, v.UpdatedAt).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert row value: %w", err)
	}

	// List payloads are replaced as a unit under the same transaction.
	if _, err := tx.ExecContext(ctx, `DELETE FROM row_value_entries WHERE row_value_id = $1`, v.ID); err != nil {
		return fmt.Errorf("failed to clear value entries: %w", err)
	}
	for _, entry := range v.Multi {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO row_value_entries (id, row_value_id, ord, value) VALUES ($1, $2, $3, $4)`,
			entry.ID, v.ID, entry.Order, entry.Value)
		if err != nil {
			return fmt.Errorf("failed to insert value entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM row_media WHERE row_value_id = $1`, v.ID); err != nil {
		return fmt.Errorf("failed to clear value media: %w", err)
	}
	for _, m := range v.Media {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO row_media (id, row_value_id, url, name, mime_type, ord) VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, v.ID, m.URL, m.Name, m.MimeType, m.Order)
		if err != nil {
			return fmt.Errorf("failed to insert value media: %w", err)
		}
	}
	return nil
}

// AppendChangeLog records a change-log entry for a value write.
func (r *PostgresRowRepository) AppendChangeLog(ctx context.Context, entry *entities.ChangeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO row_change_log (id, row_id, property_id, user_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.RowID, entry.PropertyID, nullable(entry.UserID),
		entry.OldValue, entry.NewValue, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append change log: %w", err)
	}
	return nil
}

// ListGrants returns all ACL grants on a row.
func (r *PostgresRowRepository) ListGrants(ctx context.Context, rowID string) ([]*entities.RowPermission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, row_id, tenant_id, user_id, role_id, group_id, level
		FROM row_permissions
		WHERE row_id = $1
	`, rowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []*entities.RowPermission
	for rows.Next() {
		g := &entities.RowPermission{}
		var tenantID, userID, roleID, groupID sql.NullString
		if err := rows.Scan(&g.ID, &g.RowID, &tenantID, &userID, &roleID, &groupID, &g.Level); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.TenantID = ptr(tenantID)
		g.UserID = ptr(userID)
		g.RoleID = ptr(roleID)
		g.GroupID = ptr(groupID)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}
	return grants, nil
}

// CreateEdge links a parent row to a child row, appending to the link order.
func (r *PostgresRowRepository) CreateEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relationship_rows (id, relationship_id, parent_row_id, child_row_id, ord, created_at)
		VALUES ($1, $2, $3, $4,
		        COALESCE((SELECT MAX(ord) + 1 FROM relationship_rows
		                  WHERE relationship_id = $2 AND parent_row_id = $3), 0),
		        $5)
		ON CONFLICT (relationship_id, parent_row_id, child_row_id) DO NOTHING
	`, uuid.NewString(), relationshipID, parentRowID, childRowID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create relationship edge: %w", err)
	}
	return nil
}

// ReplaceEdge removes any existing edge in the relationship slot and links
// the child. Used for single-cardinality relationships.
func (r *PostgresRowRepository) ReplaceEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM relationship_rows WHERE relationship_id = $1 AND parent_row_id = $2`,
		relationshipID, parentRowID)
	if err != nil {
		return fmt.Errorf("failed to clear relationship slot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO relationship_rows (id, relationship_id, parent_row_id, child_row_id, ord, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
	`, uuid.NewString(), relationshipID, parentRowID, childRowID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create relationship edge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit edge replacement: %w", err)
	}
	return nil
}

// DeleteEdge removes the edge between parent and child.
func (r *PostgresRowRepository) DeleteEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM relationship_rows WHERE relationship_id = $1 AND parent_row_id = $2 AND child_row_id = $3`,
		relationshipID, parentRowID, childRowID)
	if err != nil {
		return fmt.Errorf("failed to delete relationship edge: %w", err)
	}
	return nil
}

func edgeOrderClause(order repositories.EdgeOrder) string {
	switch order {
	case repositories.OrderByCreated:
		return "rows.created_at, rows.id"
	case repositories.OrderByUpdated:
		return "rows.updated_at, rows.id"
	default:
		return "rr.ord, rr.created_at"
	}
}

// ListParents returns rows attached as parents of the child.
func (r *PostgresRowRepository) ListParents(ctx context.Context, relationshipID, childRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM rows
		JOIN relationship_rows rr ON rr.parent_row_id = rows.id
		WHERE rr.relationship_id = $1 AND rr.child_row_id = $2
		ORDER BY %s
	`, rowColumns, edgeOrderClause(order))
	return r.queryEdgeRows(ctx, sqlStr, relationshipID, childRowID)
}

// ListChildren returns rows attached as children of the parent.
func (r *PostgresRowRepository) ListChildren(ctx context.Context, relationshipID, parentRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM rows
		JOIN relationship_rows rr ON rr.child_row_id = rows.id
		WHERE rr.relationship_id = $1 AND rr.parent_row_id = $2
		ORDER BY %s
	`, rowColumns, edgeOrderClause(order))
	return r.queryEdgeRows(ctx, sqlStr, relationshipID, parentRowID)
}

// CountChildren returns how many child rows are attached.
func (r *PostgresRowRepository) CountChildren(ctx context.Context, relationshipID, parentRowID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationship_rows WHERE relationship_id = $1 AND parent_row_id = $2`,
		relationshipID, parentRowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return count, nil
}

func (r *PostgresRowRepository) queryEdgeRows(ctx context.Context, sqlStr string, args ...interface{}) ([]*entities.Row, error) {
	rs, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query related rows: %w", err)
	}
	defer rs.Close()

	var result []*entities.Row
	for rs.Next() {
		row, err := scanRow(rs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan related row: %w", err)
		}
		result = append(result, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate related rows: %w", err)
	}
	if err := r.populate(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// populate loads values, list payloads, tags and grants for a page of rows.
func (r *PostgresRowRepository) populate(ctx context.Context, page []*entities.Row) error {
	if len(page) == 0 {
		return nil
	}
	rowIDs := make([]string, 0, len(page))
	byID := make(map[string]*entities.Row, len(page))
	for _, row := range page {
		rowIDs = append(rowIDs, row.ID)
		byID[row.ID] = row
	}

	valueByID := make(map[string]*entities.RowValue)
	vs, err := r.db.QueryContext(ctx, `
		SELECT id, row_id, property_id, value_text, value_number, value_date, value_bool,
		       range_from_number, range_to_number, range_from_date, range_to_date, updated_at
		FROM row_values
		WHERE row_id = ANY($1)
	`, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("failed to query row values: %w", err)
	}
	defer vs.Close()
	for vs.Next() {
		v := &entities.RowValue{}
		var text sql.NullString
		var number, rangeFromNum, rangeToNum sql.NullFloat64
		var date, rangeFromDate, rangeToDate sql.NullTime
		var boolVal sql.NullBool
		if err := vs.Scan(&v.ID, &v.RowID, &v.PropertyID, &text, &number, &date, &boolVal,
			&rangeFromNum, &rangeToNum, &rangeFromDate, &rangeToDate, &v.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan row value: %w", err)
		}
		v.Text = ptr(text)
		if number.Valid {
			v.Number = &number.Float64
		}
		if date.Valid {
			d := date.Time
			v.Date = &d
		}
		if boolVal.Valid {
			b := boolVal.Bool
			v.Bool = &b
		}
		if rangeFromNum.Valid || rangeToNum.Valid || rangeFromDate.Valid || rangeToDate.Valid {
			v.Range = &entities.ValueRange{}
			if rangeFromNum.Valid {
				v.Range.FromNumber = &rangeFromNum.Float64
			}
			if rangeToNum.Valid {
				v.Range.ToNumber = &rangeToNum.Float64
			}
			if rangeFromDate.Valid {
				d := rangeFromDate.Time
				v.Range.FromDate = &d
			}
			if rangeToDate.Valid {
				d := rangeToDate.Time
				v.Range.ToDate = &d
			}
		}
		if row, ok := byID[v.RowID]; ok {
			row.Values = append(row.Values, v)
		}
		valueByID[v.ID] = v
	}
	if err := vs.Err(); err != nil {
		return fmt.Errorf("failed to iterate row values: %w", err)
	}

	es, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.row_value_id, e.ord, e.value
		FROM row_value_entries e
		JOIN row_values v ON v.id = e.row_value_id
		WHERE v.row_id = ANY($1)
		ORDER BY e.ord
	`, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("failed to query value entries: %w", err)
	}
	defer es.Close()
	for es.Next() {
		entry := &entities.MultiEntry{}
		var valueID string
		if err := es.Scan(&entry.ID, &valueID, &entry.Order, &entry.Value); err != nil {
			return fmt.Errorf("failed to scan value entry: %w", err)
		}
		if v, ok := valueByID[valueID]; ok {
			v.Multi = append(v.Multi, entry)
		}
	}
	if err := es.Err(); err != nil {
		return fmt.Errorf("failed to iterate value entries: %w", err)
	}

	ms, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.row_value_id, m.url, m.name, m.mime_type, m.ord
		FROM row_media m
		JOIN row_values v ON v.id = m.row_value_id
		WHERE v.row_id = ANY($1)
		ORDER BY m.ord
	`, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("failed to query row media: %w", err)
	}
	defer ms.Close()
	for ms.Next() {
		m := &entities.RowMedia{}
		var valueID string
		if err := ms.Scan(&m.ID, &valueID, &m.URL, &m.Name, &m.MimeType, &m.Order); err != nil {
			return fmt.Errorf("failed to scan row media: %w", err)
		}
		if v, ok := valueByID[valueID]; ok {
			v.Media = append(v.Media, m)
		}
	}
	if err := ms.Err(); err != nil {
		return fmt.Errorf("failed to iterate row media: %w", err)
	}

	ts, err := r.db.QueryContext(ctx,
		`SELECT id, row_id, value FROM row_tags WHERE row_id = ANY($1)`, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("failed to query row tags: %w", err)
	}
	defer ts.Close()
	for ts.Next() {
		t := &entities.RowTag{}
		if err := ts.Scan(&t.ID, &t.RowID, &t.Value); err != nil {
			return fmt.Errorf("failed to scan row tag: %w", err)
		}
		if row, ok := byID[t.RowID]; ok {
			row.Tags = append(row.Tags, t)
		}
	}
	if err := ts.Err(); err != nil {
		return fmt.Errorf("failed to iterate row tags: %w", err)
	}

	gs, err := r.db.QueryContext(ctx, `
		SELECT id, row_id, tenant_id, user_id, role_id, group_id, level
		FROM row_permissions
		WHERE row_id = ANY($1)
	`, pq.Array(rowIDs))
	if err != nil {
		return fmt.Errorf("failed to query row grants: %w", err)
	}
	defer gs.Close()
	for _, row := range page {
		row.Grants = []*entities.RowPermission{}
	}
	for gs.Next() {
		g := &entities.RowPermission{}
		var tenantID, userID, roleID, groupID sql.NullString
		if err := gs.Scan(&g.ID, &g.RowID, &tenantID, &userID, &roleID, &groupID, &g.Level); err != nil {
			return fmt.Errorf("failed to scan row grant: %w", err)
		}
		g.TenantID = ptr(tenantID)
		g.UserID = ptr(userID)
		g.RoleID = ptr(roleID)
		g.GroupID = ptr(groupID)
		if row, ok := byID[g.RowID]; ok {
			row.Grants = append(row.Grants, g)
		}
	}
	return gs.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func ptr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
