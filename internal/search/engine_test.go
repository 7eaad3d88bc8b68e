package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/statsearch/internal/config"
	"github.com/hyperjump/statsearch/internal/indexer"
	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/storage"
	"github.com/hyperjump/statsearch/internal/vector"
)

// fixedEmbedder maps query text to a preset vector.
type fixedEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fixedEmbedder) Dimensions() int { return f.dim }
func (f *fixedEmbedder) Close() error    { return nil }

// flakyStorage fails GetRecord for one id.
type flakyStorage struct {
	storage.Storage
	failID int64
}

func (f *flakyStorage) GetRecord(ctx context.Context, id int64) (*models.Record, error) {
	if id == f.failID {
		return nil, errors.New("database is locked")
	}
	return f.Storage.GetRecord(ctx, id)
}

func newTestStorage(t *testing.T, ids ...int64) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "statistics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	records := make([]models.Record, len(ids))
	for i, id := range ids {
		records[i] = models.Record{ID: id, Title: fmt.Sprintf("Record %d", id)}
	}
	if err := store.BatchInsertRecords(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	return store
}

func exampleSnapshot(t *testing.T) *vector.Store {
	t.Helper()
	s, err := vector.BuildPairs([]vector.Pair{
		{ID: 1, Vector: []float32{0, 0}},
		{ID: 2, Vector: []float32{1, 0}},
		{ID: 3, Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func exampleEmbedder() *fixedEmbedder {
	return &fixedEmbedder{dim: 2, vectors: map[string][]float32{
		"near two":   {0.9, 0},
		"near three": {0, 0.9},
		"wrong dim":  {1, 2, 3},
	}}
}

func testConfig() config.SearchConfig {
	return config.SearchConfig{DefaultLimit: 5, MaxLimit: 100, StreamLimit: 10}
}

func ids(records []*models.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_Find(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t, 1, 2, 3), testConfig())

	got, err := e.Find(context.Background(), &models.SearchQuery{Query: "near two", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{2, 1}; !equalIDs(ids(got), want) {
		t.Errorf("Find ids = %v, want %v", ids(got), want)
	}
	if got[0].Title != "Record 2" {
		t.Errorf("record not hydrated: %+v", got[0])
	}

	got, err = e.Find(context.Background(), &models.SearchQuery{Query: "near three"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{3, 1, 2}; !equalIDs(ids(got), want) {
		t.Errorf("default limit ids = %v, want %v", ids(got), want)
	}
}

func TestEngine_FindSkipsMissingRecords(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t, 1, 3), testConfig())
	got, err := e.Find(context.Background(), &models.SearchQuery{Query: "near two", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{1, 3}; !equalIDs(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}

func TestEngine_FindStorageError(t *testing.T) {
	meta := &flakyStorage{Storage: newTestStorage(t, 1, 2, 3), failID: 1}
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), meta, testConfig())
	if _, err := e.Find(context.Background(), &models.SearchQuery{Query: "near two", Limit: 2}); err == nil {
		t.Fatal("expected storage error to fail the query")
	}
}

func TestEngine_Availability(t *testing.T) {
	ctx := context.Background()
	meta := newTestStorage(t, 1)

	absent := NewEngine(nil, exampleEmbedder(), meta, testConfig())
	if _, err := absent.Find(ctx, &models.SearchQuery{Query: "near two"}); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("absent index: got %v", err)
	}
	if absent.IndexLoaded() || !absent.SearchAvailable() || absent.Mode() != ModeNormal {
		t.Error("absent engine: unexpected stats")
	}

	disabled := NewDisabledEngine(meta, testConfig())
	_, err := disabled.Find(ctx, &models.SearchQuery{Query: "near two"})
	if !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("disabled engine: got %v", err)
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Error("ErrSearchDisabled should satisfy ErrIndexUnavailable")
	}
	if err := disabled.Stream(ctx, "near two", func(*models.Record) error { return nil }); !errors.Is(err, ErrSearchDisabled) {
		t.Errorf("disabled stream: got %v", err)
	}
	if disabled.Mode() != ModeFast || disabled.SearchAvailable() || disabled.IndexLoaded() {
		t.Error("disabled engine: unexpected stats")
	}
}

func TestEngine_FindErrors(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t, 1, 2, 3), testConfig())
	ctx := context.Background()

	if _, err := e.Find(ctx, &models.SearchQuery{Query: ""}); !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("empty query: got %v", err)
	}
	if _, err := e.Find(ctx, &models.SearchQuery{Query: "unknown text"}); !errors.Is(err, indexer.ErrEmbeddingFailure) {
		t.Errorf("embedding failure: got %v", err)
	}
	if _, err := e.Find(ctx, &models.SearchQuery{Query: "wrong dim"}); !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("dimension mismatch: got %v", err)
	}
}

func TestEngine_Stream(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t, 1, 2, 3), testConfig())

	var got []int64
	err := e.Stream(context.Background(), "near two", func(r *models.Record) error {
		got = append(got, r.ID)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{2, 1, 3}; !equalIDs(got, want) {
		t.Errorf("streamed ids = %v, want %v", got, want)
	}
}

func TestEngine_StreamLimitAndStop(t *testing.T) {
	pairs := make([]vector.Pair, 15)
	recordIDs := make([]int64, 15)
	for i := range pairs {
		pairs[i] = vector.Pair{ID: int64(i + 1), Vector: []float32{float32(i), 0}}
		recordIDs[i] = int64(i + 1)
	}
	snap, err := vector.BuildPairs(pairs)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEngine(snap, exampleEmbedder(), newTestStorage(t, recordIDs...), testConfig())

	count := 0
	if err := e.Stream(context.Background(), "near two", func(*models.Record) error {
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 10 {
		t.Errorf("streamed %d records, want 10", count)
	}

	stop := errors.New("client went away")
	count = 0
	err = e.Stream(context.Background(), "near two", func(*models.Record) error {
		count++
		if count == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || count != 3 {
		t.Errorf("stream did not stop: err=%v count=%d", err, count)
	}
}

func TestEngine_Neighbors(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t), testConfig())
	got, err := e.Neighbors(context.Background(), "near two", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Errorf("Neighbors = %+v", got)
	}
}

func TestEngine_Swap(t *testing.T) {
	e := NewEngine(nil, exampleEmbedder(), newTestStorage(t, 1, 2, 3), testConfig())
	if e.IndexSize() != 0 || e.Dimension() != 0 {
		t.Error("absent engine should report empty stats")
	}
	if old := e.Swap(exampleSnapshot(t)); old != nil {
		t.Error("expected no previous snapshot")
	}
	if !e.IndexLoaded() || e.IndexSize() != 3 || e.Dimension() != 2 {
		t.Errorf("stats after swap: loaded=%v size=%d dim=%d", e.IndexLoaded(), e.IndexSize(), e.Dimension())
	}
	if _, err := e.Find(context.Background(), &models.SearchQuery{Query: "near two"}); err != nil {
		t.Errorf("Find after swap: %v", err)
	}
}

func TestEngine_ConcurrentFindAndSwap(t *testing.T) {
	e := NewEngine(exampleSnapshot(t), exampleEmbedder(), newTestStorage(t, 1, 2, 3), testConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := e.Find(context.Background(), &models.SearchQuery{Query: "near two", Limit: 1})
				if err != nil {
					t.Error(err)
					return
				}
				if len(got) != 1 || got[0].ID != 2 {
					t.Errorf("unexpected result %v", ids(got))
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		e.Swap(exampleSnapshot(t))
	}
	wg.Wait()
}
