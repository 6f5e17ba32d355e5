package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

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

func (s *PGStore) Tenants(context.Context) TenantStore         { return &tenantStore{db: s.db} }
func (s *PGStore) Accounts(context.Context) AccountStore       { return &accountStore{db: s.db} }
func (s *PGStore) ResetTokens(context.Context) ResetTokenStore { return &resetTokenStore{db: s.db} }

// Tenant store --------------------------------------------------------------
type tenantStore struct{ db *sql.DB }

func (s *tenantStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	meta, _ := json.Marshal(t.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into tenants(id, slug, name, status, metadata) values($1,$2,$3,$4,$5)`,
		t.ID, t.Slug, t.Name, t.Status, meta,
	)
	return err
}

func (s *tenantStore) Find(ctx context.Context, id string) (*Tenant, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, slug, name, status, created_at, updated_at, metadata from tenants where id=$1`, id))
}

func (s *tenantStore) FindBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select id, slug, name, status, created_at, updated_at, metadata from tenants where slug=$1`, slug))
}

func (s *tenantStore) scanOne(row *sql.Row) (*Tenant, error) {
	var (
		t        Tenant
		metadata []byte
	)
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(metadata, &t.Metadata)
	return &t, nil
}

func (s *tenantStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, slug, name, status, created_at, updated_at, metadata from tenants order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Tenant
	for rows.Next() {
		var (
			t        Tenant
			metadata []byte
		)
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt, &metadata); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(metadata, &t.Metadata)
		res = append(res, &t)
	}
	return res, rows.Err()
}

// Account store -------------------------------------------------------------
type accountStore struct{ db *sql.DB }

const accountColumns = `id, tenant_id, email, password_hash, role, status, two_factor_enabled, totp_secret, created_at, updated_at`

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, tenant_id, email, password_hash, role, status, two_factor_enabled, totp_secret)
		 values($1, nullif($2,''), $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TenantID, a.Email, a.PasswordHash, a.Role, a.Status, a.TwoFactorEnabled, a.TOTPSecret,
	)
	return err
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row.Scan)
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts where email=$1 order by created_at asc`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

func scanAccount(scan func(dest ...any) error) (*Account, error) {
	var (
		a        Account
		tenantID sql.NullString
	)
	err := scan(&a.ID, &tenantID, &a.Email, &a.PasswordHash, &a.Role, &a.Status,
		&a.TwoFactorEnabled, &a.TOTPSecret, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tenantID.Valid {
		a.TenantID = tenantID.String
	}
	return &a, nil
}

func (s *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Reset token store ---------------------------------------------------------
type resetTokenStore struct{ db *sql.DB }

func (s *resetTokenStore) Create(ctx context.Context, t *PasswordResetToken) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into password_reset_tokens(id, account_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		t.ID, t.AccountID, t.TokenHash, t.ExpiresAt,
	)
	return err
}

func (s *resetTokenStore) Find(ctx context.Context, id string) (*PasswordResetToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, account_id, token_hash, expires_at, used_at, created_at from password_reset_tokens where id=$1`, id)
	var (
		t      PasswordResetToken
		usedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		v := usedAt.Time
		t.UsedAt = &v
	}
	return &t, nil
}

func (s *resetTokenStore) MarkUsed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update password_reset_tokens set used_at=$2 where id=$1 and used_at is null`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
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
