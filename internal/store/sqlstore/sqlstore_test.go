package sqlstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"github.com/sdmxkit/sdmxreg/internal/store"
	"github.com/sdmxkit/sdmxreg/internal/store/query"
)

func newSession(t *testing.T) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := store.NewSchema()
	if err := schema.AddRelation(&store.Relation{
		Name: "code_set", Owner: "codelist.Codelist", Member: "codelist.Code", Field: "wrapper",
	}); err != nil {
		t.Fatalf("AddRelation failed: %v", err)
	}

	mock.ExpectBegin()
	session, err := New(db, schema, zap.NewNop()).Session(context.Background())
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	return session, mock
}

func TestFind_GeneratedSQL(t *testing.T) {
	session, mock := newSession(t)

	rows := sqlmock.NewRows([]string{"id", "object_id", "version", "latest"}).
		AddRow(int64(1), "CL_FREQ", "1.0", true)
	mock.ExpectQuery("SELECT * FROM codelist_codelist t WHERE t.object_id = $1 ORDER BY t.id").
		WithArgs("CL_FREQ").
		WillReturnRows(rows)

	pred := query.NewPredicateGroup(false).Where("object_id", query.OpEqual, "CL_FREQ")
	recs, err := session.Find(context.Background(), "codelist.Codelist", pred)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].GetString("object_id") != "CL_FREQ" || !recs[0].GetBool("latest") {
		t.Errorf("unexpected record fields: %v", recs[0].Fields)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreate_InsertReturningID(t *testing.T) {
	session, mock := newSession(t)

	mock.ExpectQuery("INSERT INTO codelist_codelist (object_id, version) VALUES ($1, $2) RETURNING id").
		WithArgs("CL_FREQ", "1.0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec, err := session.Create(context.Background(), "codelist.Codelist", map[string]interface{}{
		"object_id": "CL_FREQ",
		"version":   "1.0",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID != 7 {
		t.Errorf("expected id 7, got %d", rec.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRelated_ForeignKeyFilter(t *testing.T) {
	session, mock := newSession(t)

	owner := store.NewRecord("codelist.Codelist")
	owner.ID = 3

	rows := sqlmock.NewRows([]string{"id", "object_id"}).
		AddRow(int64(10), "A").
		AddRow(int64(11), "M")
	mock.ExpectQuery("SELECT * FROM codelist_code t WHERE t.wrapper_id = $1 ORDER BY t.id").
		WithArgs(int64(3)).
		WillReturnRows(rows)

	codes, err := session.Related(context.Background(), owner, "code_set")
	if err != nil {
		t.Fatalf("Related failed: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(codes))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSavepoint_SQL(t *testing.T) {
	session, mock := newSession(t)
	ctx := context.Background()

	mock.ExpectExec("SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_1").WillReturnResult(sqlmock.NewResult(0, 0))

	sp, err := session.Savepoint(ctx)
	if err != nil {
		t.Fatalf("Savepoint failed: %v", err)
	}
	if err := sp.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
