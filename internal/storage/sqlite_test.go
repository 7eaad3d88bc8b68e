package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/statsearch/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecords() []models.Record {
	return []models.Record{
		{ID: 3, Title: "Trade", Subject: "Economy", Description: "Imports and exports", Link: "https://example.org/3", Date: "2023-03-01"},
		{ID: 1, Title: "Population", Subject: "Demography", Description: "Annual estimates", Link: "https://example.org/1", Date: "2023-01-01", TeaserImageURL: "https://example.org/1.png"},
		{ID: 2, Title: "GDP", Subject: "Economy", Description: "Quarterly growth"},
	}
}

func TestSQLiteStorage_Records(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.BatchInsertRecords(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRecord(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if *got != sampleRecords()[1] {
		t.Errorf("GetRecord(1) = %+v", got)
	}

	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("CountRecords = %d, want 3", count)
	}

	list, err := store.ListRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("ListRecords returned %d records", len(list))
	}
	for i, want := range []int64{1, 2, 3} {
		if list[i].ID != want {
			t.Errorf("list[%d].ID = %d, want %d", i, list[i].ID, want)
		}
	}
}

func TestSQLiteStorage_GetRecordNotFound(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.GetRecord(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_BatchInsertIsAtomic(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	dup := []models.Record{{ID: 1, Title: "a"}, {ID: 1, Title: "b"}}
	if err := store.BatchInsertRecords(ctx, dup); err == nil {
		t.Fatal("expected primary key violation")
	}
	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("failed batch left %d rows", count)
	}
}

func TestSQLiteStorage_ImportIfEmpty(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	n, err := store.ImportIfEmpty(ctx, sampleRecords())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("first import inserted %d, want 3", n)
	}

	n, err = store.ImportIfEmpty(ctx, []models.Record{{ID: 99, Title: "late"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second import inserted %d, want 0", n)
	}
	if _, err := store.GetRecord(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("record 99 should not exist, got %v", err)
	}
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.BatchInsertRecords(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	count, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("CountRecords = %d, want 3", count)
	}
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "statistics.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BatchInsertRecords(context.Background(), sampleRecords()); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := store.GetRecord(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Trade" {
		t.Errorf("got %+v", got)
	}
}
