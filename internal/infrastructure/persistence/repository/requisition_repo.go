package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
	"github.com/garyjia/procure-approval/internal/domain/workflow"
	"github.com/garyjia/procure-approval/internal/infrastructure/persistence/sqlite"
)

// RequisitionRepository implements port.RequisitionRepository on SQLite.
// The aggregate is spread over six tables and always loaded whole.
type RequisitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *sql.DB, logger *zap.Logger) port.RequisitionRepository {
	return &RequisitionRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts the requisition and all of its children
func (r *RequisitionRepository) Create(ctx context.Context, req *requisition.Requisition) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	now := r.now()
	if req.Version == 0 {
		req.Version = 1
	}

	_, err := exec.ExecContext(ctx, `
		INSERT INTO requisitions (
			id, kind, description, requester_id, director_id,
			status, decided_at, decided_by, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID,
		string(req.Kind),
		req.Description,
		req.RequesterID,
		req.DirectorID,
		string(req.Status),
		nullTime(req.DecidedAt),
		req.DecidedBy,
		req.Version,
		req.CreatedAt,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create requisition", zap.String("id", req.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to create requisition: %w", err)
	}

	for i, m := range req.Managers {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO requisition_managers (requisition_id, manager_id, position) VALUES (?, ?, ?)`,
			req.ID, m, i,
		); err != nil {
			return fmt.Errorf("failed to insert manager %s: %w", m, err)
		}
	}

	for i, a := range req.Allocations {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO allocations (requisition_id, department_id, percentage, position) VALUES (?, ?, ?, ?)`,
			req.ID, a.DepartmentID, a.Percentage, i,
		); err != nil {
			return fmt.Errorf("failed to insert allocation %s: %w", a.DepartmentID, err)
		}
	}

	for i, q := range req.Quotes {
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO quotes (id, requisition_id, supplier, state, director_approved, director_id, decided_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			q.ID, req.ID, q.Supplier, string(q.State), q.DirectorApproved, q.DirectorID, nullTime(q.DecidedAt), i,
		); err != nil {
			return fmt.Errorf("failed to insert quote %s: %w", q.ID, err)
		}

		for j, item := range q.Items {
			if _, err := exec.ExecContext(ctx,
				`INSERT INTO quote_line_items (quote_id, position, description, quantity, unit_price) VALUES (?, ?, ?, ?, ?)`,
				q.ID, j, item.Description, item.Quantity, item.UnitPrice,
			); err != nil {
				return fmt.Errorf("failed to insert line item %d of quote %s: %w", j, q.ID, err)
			}
		}
	}

	return r.insertRecords(ctx, exec, req)
}

// GetByID loads the full aggregate
func (r *RequisitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*requisition.Requisition, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	req, err := scanRequisition(exec.QueryRowContext(ctx, selectRequisition+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get requisition", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get requisition: %w", err)
	}

	if err := r.loadChildren(ctx, exec, req); err != nil {
		r.logger.Error("Failed to load requisition children", zap.String("id", id.String()), zap.Error(err))
		return nil, err
	}

	req.Rehydrate()
	return req, nil
}

// Save persists decision effects conditionally on the loaded version
func (r *RequisitionRepository) Save(ctx context.Context, req *requisition.Requisition) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	result, err := exec.ExecContext(ctx, `
		UPDATE requisitions
		SET status = ?, decided_at = ?, decided_by = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		string(req.Status),
		nullTime(req.DecidedAt),
		req.DecidedBy,
		r.now(),
		req.ID,
		req.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update requisition", zap.String("id", req.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update requisition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := exec.QueryRowContext(ctx, `SELECT 1 FROM requisitions WHERE id = ?`, req.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", port.ErrNotFound, req.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to check requisition: %w", err)
		}
		return fmt.Errorf("%w: %s at version %d", port.ErrConcurrentModification, req.ID, req.Version)
	}

	for _, q := range req.Quotes {
		if _, err := exec.ExecContext(ctx, `
			UPDATE quotes SET state = ?, director_approved = ?, director_id = ?, decided_at = ?
			WHERE id = ? AND requisition_id = ?
		`,
			string(q.State), q.DirectorApproved, q.DirectorID, nullTime(q.DecidedAt), q.ID, req.ID,
		); err != nil {
			return fmt.Errorf("failed to update quote %s: %w", q.ID, err)
		}
	}

	if err := r.insertRecords(ctx, exec, req); err != nil {
		return err
	}

	req.Version++
	return nil
}

// ListByRequester returns requisitions opened by userID, newest first
func (r *RequisitionRepository) ListByRequester(ctx context.Context, userID string, filter port.ListFilter) ([]*requisition.Requisition, error) {
	return r.list(ctx, `requester_id = ?`, []interface{}{userID}, filter)
}

// ListByApprover returns requisitions where userID is the director or an assigned manager
func (r *RequisitionRepository) ListByApprover(ctx context.Context, userID string, filter port.ListFilter) ([]*requisition.Requisition, error) {
	return r.list(ctx,
		`(director_id = ? OR id IN (SELECT requisition_id FROM requisition_managers WHERE manager_id = ?))`,
		[]interface{}{userID, userID},
		filter,
	)
}

// CountByStatus returns requisition counts per status
func (r *RequisitionRepository) CountByStatus(ctx context.Context) (map[requisition.Status]int, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `SELECT status, COUNT(*) FROM requisitions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requisitions: %w", err)
	}
	defer rows.Close()

	counts := map[requisition.Status]int{
		requisition.StatusPending:  0,
		requisition.StatusApproved: 0,
		requisition.StatusRejected: 0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[requisition.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *RequisitionRepository) list(ctx context.Context, where string, args []interface{}, filter port.ListFilter) ([]*requisition.Requisition, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	clauses := []string{where}
	if filter.Status != "" {
		clauses = append(clauses, `status = ?`)
		args = append(args, string(filter.Status))
	}
	query := selectRequisition + ` WHERE ` + strings.Join(clauses, ` AND `) + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requisitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list requisitions: %w", err)
	}

	var result []*requisition.Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan requisition: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, req := range result {
		if err := r.loadChildren(ctx, exec, req); err != nil {
			return nil, err
		}
		req.Rehydrate()
	}
	return result, nil
}

const selectRequisition = `
	SELECT id, kind, description, requester_id, director_id,
		status, decided_at, decided_by, version, created_at
	FROM requisitions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequisition(row rowScanner) (*requisition.Requisition, error) {
	var req requisition.Requisition
	var kind, status string
	var decidedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&kind,
		&req.Description,
		&req.RequesterID,
		&req.DirectorID,
		&status,
		&decidedAt,
		&req.DecidedBy,
		&req.Version,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Kind = requisition.Kind(kind)
	req.Status = requisition.Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return &req, nil
}

func (r *RequisitionRepository) loadChildren(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	if err := loadManagers(ctx, exec, req); err != nil {
		return err
	}
	if err := loadAllocations(ctx, exec, req); err != nil {
		return err
	}
	if err := loadQuotes(ctx, exec, req); err != nil {
		return err
	}
	return loadRecords(ctx, exec, req)
}

func loadManagers(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	rows, err := exec.QueryContext(ctx,
		`SELECT manager_id FROM requisition_managers WHERE requisition_id = ? ORDER BY position`, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load managers: %w", err)
	}
	defer rows.Close()

	req.Managers = []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return fmt.Errorf("failed to scan manager: %w", err)
		}
		req.Managers = append(req.Managers, m)
	}
	return rows.Err()
}

func loadAllocations(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	rows, err := exec.QueryContext(ctx,
		`SELECT department_id, percentage FROM allocations WHERE requisition_id = ? ORDER BY position`, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a requisition.Allocation
		if err := rows.Scan(&a.DepartmentID, &a.Percentage); err != nil {
			return fmt.Errorf("failed to scan allocation: %w", err)
		}
		req.Allocations = append(req.Allocations, a)
	}
	return rows.Err()
}

func loadQuotes(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, supplier, state, director_approved, director_id, decided_at
		FROM quotes WHERE requisition_id = ? ORDER BY position
	`, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load quotes: %w", err)
	}

	for rows.Next() {
		var q requisition.Quote
		var state string
		var decidedAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.Supplier, &state, &q.DirectorApproved, &q.DirectorID, &decidedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan quote: %w", err)
		}
		parsed, err := workflow.ParseState(state)
		if err != nil {
			rows.Close()
			return fmt.Errorf("quote %s: %w", q.ID, err)
		}
		q.State = parsed
		if decidedAt.Valid {
			t := decidedAt.Time
			q.DecidedAt = &t
		}
		q.ManagerApprovals = []string{}
		req.Quotes = append(req.Quotes, &q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, q := range req.Quotes {
		if err := loadLineItems(ctx, exec, q); err != nil {
			return err
		}
	}
	return nil
}

func loadLineItems(ctx context.Context, exec sqlite.Executor, q *requisition.Quote) error {
	rows, err := exec.QueryContext(ctx,
		`SELECT description, quantity, unit_price FROM quote_line_items WHERE quote_id = ? ORDER BY position`, q.ID)
	if err != nil {
		return fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item requisition.LineItem
		if err := rows.Scan(&item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		q.Items = append(q.Items, item)
	}
	return rows.Err()
}

func loadRecords(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, quote_id, actor_id, actor_role, on_behalf_of, master, decision, created_at
		FROM approval_records WHERE requisition_id = ? ORDER BY seq
	`, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load approval records: %w", err)
	}
	defer rows.Close()

	req.Records = []requisition.ApprovalRecord{}
	for rows.Next() {
		var rec requisition.ApprovalRecord
		var role, decision string
		if err := rows.Scan(&rec.ID, &rec.QuoteID, &rec.ActorID, &role, &rec.OnBehalfOf, &rec.Master, &decision, &rec.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan approval record: %w", err)
		}
		rec.RequisitionID = req.ID
		rec.ActorRole = requisition.ActingRole(role)
		rec.Decision = requisition.Decision(decision)
		req.Records = append(req.Records, rec)
	}
	return rows.Err()
}

// insertRecords writes the decision log. Records already stored are skipped,
// so Save can pass the whole log without tracking what is new.
func (r *RequisitionRepository) insertRecords(ctx context.Context, exec sqlite.Executor, req *requisition.Requisition) error {
	for seq, rec := range req.Records {
		if _, err := exec.ExecContext(ctx, `
			INSERT OR IGNORE INTO approval_records (
				id, requisition_id, quote_id, seq, actor_id, actor_role,
				on_behalf_of, master, decision, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID, req.ID, rec.QuoteID, seq, rec.ActorID, string(rec.ActorRole),
			rec.OnBehalfOf, rec.Master, string(rec.Decision), rec.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to insert approval record", zap.String("requisition_id", req.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to insert approval record: %w", err)
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
