package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The serialization invariant is
// enforced in the database: Create inserts only when no non-terminal row for
// the same (kind, target) exists, backed by a partial unique index so the
// check-and-set holds under concurrent requests.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, op *Operation) error {
	res, err := s.db.ExecContext(ctx, `
		insert into maintenance_operations(id, kind, target_tenant_id, status, requested_by, requested_at)
		select $1, $2, nullif($3,''), $4, $5, $6
		where not exists (
			select 1 from maintenance_operations
			where kind = $2
			  and coalesce(target_tenant_id,'') = coalesce(nullif($3,''),'')
			  and status in ('pending','running')
		)`,
		op.ID, op.Kind, op.TargetTenantID, op.Status, op.RequestedBy, op.RequestedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOperationInProgress
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOperationInProgress
	}
	return nil
}

func (s *PGStore) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update maintenance_operations set status='running' where id=$1 and status='pending'`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) MarkTerminal(ctx context.Context, id, status, errMsg string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update maintenance_operations
		set status=$2, error=nullif($3,''), completed_at=$4
		where id=$1 and status in ('pending','running')`,
		id, status, errMsg, at,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const operationColumns = `id, kind, coalesce(target_tenant_id,''), status, requested_by, requested_at, completed_at, coalesce(error,'')`

func (s *PGStore) Find(ctx context.Context, id string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+operationColumns+` from maintenance_operations where id=$1`, id)
	op, err := scanOperation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return op, nil
}

func (s *PGStore) Recent(ctx context.Context, limit int) ([]Operation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+operationColumns+` from maintenance_operations order by requested_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Operation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *op)
	}
	return res, rows.Err()
}

func scanOperation(scan func(dest ...any) error) (*Operation, error) {
	var (
		op          Operation
		completedAt sql.NullTime
	)
	err := scan(&op.ID, &op.Kind, &op.TargetTenantID, &op.Status, &op.RequestedBy,
		&op.RequestedAt, &completedAt, &op.Error)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		v := completedAt.Time
		op.CompletedAt = &v
	}
	return &op, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
