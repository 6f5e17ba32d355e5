package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"parishdesk.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, tenant_id, actor_id, action, entity_type, occurred_at, metadata)
		 values($1, nullif($2,''), $3, $4, $5, $6, $7)`,
		entry.ID, entry.TenantID, entry.ActorID, entry.Action, entry.EntityType, entry.OccurredAt, meta,
	)
	return err
}

func (s *PGStore) Query(ctx context.Context, tenantID, filter string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(tenant_id,''), actor_id, action, entity_type, occurred_at, metadata
		 from audit_log
		 where coalesce(tenant_id,'') = $1 and ($2 = '' or action ilike '%' || $2 || '%')
		 order by occurred_at desc
		 limit $3`,
		tenantID, filter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.EntityType, &e.OccurredAt, &meta); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(meta, &e.Metadata)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *PGStore) Purge(ctx context.Context, tenantID, filter string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from audit_log
		 where coalesce(tenant_id,'') = $1 and ($2 = '' or action ilike '%' || $2 || '%')`,
		tenantID, filter)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
