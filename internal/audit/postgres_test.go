package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// Provider-level entries are stored with a NULL tenant_id and queried with
// an empty tenant filter; the predicate must treat the two as equal, the
// same way MemoryStore matches TenantID == "".
func TestPGStoreQueryMatchesProviderEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	occurred := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "actor_id", "action", "entity_type", "occurred_at", "metadata"}).
		AddRow("e1", "", "a1", "maintenance.restart.completed", "maintenance_operation", occurred, []byte(`{"kind":"full_restart"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`coalesce(tenant_id,'') = $1`)).
		WithArgs("", "", 10).
		WillReturnRows(rows)

	store := NewPGStore(db)
	entries, err := store.Query(context.Background(), "", "", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 || entries[0].TenantID != "" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Metadata["kind"] != "full_restart" {
		t.Fatalf("metadata = %v", entries[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStorePurgeUsesSamePredicateAsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`coalesce(tenant_id,'') = $1`)).
		WithArgs("t1", "").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewPGStore(db)
	deleted, err := store.Purge(context.Background(), "t1", "")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted = %d, want 3", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
