package diagnoses

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreSaveReplacesHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	h := sampleHistory()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM analysis_history`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	for i, record := range h {
		payload, merr := json.Marshal(record)
		if merr != nil {
			t.Fatalf("marshal: %v", merr)
		}
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO analysis_history (id, position, payload, created_at) VALUES ($1, $2, $3, $4)`)).
			WithArgs(record.ID, i, payload, record.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	store := &PGStore{DB: db}
	if err := store.Save(context.Background(), h); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreSaveRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	h := sampleHistory()[:1]

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM analysis_history`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO analysis_history`)).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	store := &PGStore{DB: db}
	if err := store.Save(context.Background(), h); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreLoadOrdersByPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	h := sampleHistory()
	rows := sqlmock.NewRows([]string{"id", "payload"})
	for _, record := range h {
		payload, merr := json.Marshal(record)
		if merr != nil {
			t.Fatalf("marshal: %v", merr)
		}
		rows.AddRow(record.ID, payload)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payload FROM analysis_history ORDER BY position`)).
		WillReturnRows(rows)

	store := &PGStore{DB: db}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != h[0].ID || got[1].ID != h[1].ID {
		t.Fatalf("expected position order preserved, got %v then %v", got[0].ID, got[1].ID)
	}
}

func TestPGStoreLoadSkipsCorruptRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	good := sampleHistory()[0]
	payload, merr := json.Marshal(good)
	if merr != nil {
		t.Fatalf("marshal: %v", merr)
	}
	rows := sqlmock.NewRows([]string{"id", "payload"}).
		AddRow("bad-row", []byte(`{not json`)).
		AddRow(good.ID, payload)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payload FROM analysis_history`)).
		WillReturnRows(rows)

	store := &PGStore{DB: db}
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].ID != good.ID {
		t.Fatalf("expected corrupt row skipped, got %+v", got)
	}
}
