package index

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/docingest/internal/db"
	dbredis "github.com/kailas-cloud/docingest/internal/db/redis"
	"github.com/kailas-cloud/docingest/internal/domain"
)

func TestRedis_EnsureIndex_Creates(t *testing.T) {
	var created *db.IndexDefinition
	ms := &mockStore{
		createIndexFn: func(_ context.Context, def *db.IndexDefinition) error {
			created = def
			return nil
		},
	}

	r := NewRedis(ms, "contract-analysis", "", 1024).WithHNSW(HNSWConfig{M: 32})
	if err := r.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected FT.CREATE")
	}
	if created.Name != "docingest:contract-analysis:idx" {
		t.Errorf("index name = %q", created.Name)
	}
	if len(created.Prefixes) != 1 || created.Prefixes[0] != "docingest:contract-analysis:" {
		t.Errorf("prefixes = %v", created.Prefixes)
	}

	vec := created.Vector
	if vec == nil {
		t.Fatal("expected a vector field")
	}
	if vec.Alias != "vector" || vec.Dim != 1024 || vec.Distance != db.DistanceCosine {
		t.Errorf("unexpected vector field %+v", vec)
	}
	if vec.M != 32 || vec.EFConstruct != 200 {
		t.Errorf("HNSW params = %d/%d, want 32/200", vec.M, vec.EFConstruct)
	}
	if created.Fields[0].Name != "source" || created.Fields[0].Type != db.IndexFieldTag {
		t.Errorf("expected source TAG first, got %+v", created.Fields[0])
	}
}

func TestRedis_EnsureIndex_Idempotent(t *testing.T) {
	ms := &mockStore{
		indexExistsFn: func(context.Context, string) (bool, error) { return true, nil },
		createIndexFn: func(context.Context, *db.IndexDefinition) error {
			t.Fatal("must not create an existing index")
			return nil
		},
	}
	if err := NewRedis(ms, "idx", "", testDim).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// lost a creation race
	ms = &mockStore{
		createIndexFn: func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists },
	}
	if err := NewRedis(ms, "idx", "", testDim).EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ErrIndexExists should be tolerated, got %v", err)
	}
}

func TestRedis_Upsert(t *testing.T) {
	var got []db.HashSetItem
	ms := &mockStore{
		hsetMultiFn: func(_ context.Context, items []db.HashSetItem) error {
			got = items
			return nil
		},
	}
	r := NewRedis(ms, "idx", "test:", testDim)

	recs := []domain.Record{
		testRecord(0, "Master services agreement", "msa.pdf", 1, 0, 0),
		testRecord(1, "Late payment penalty", "msa.pdf", 0, 1, 0),
	}
	if err := r.Upsert(context.Background(), recs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[1].Key != "test:idx:"+domain.RecordID("Late payment penalty") {
		t.Errorf("unexpected key %q", got[1].Key)
	}
	f := got[1].Fields
	if f["chunk_id"] != "1" || f["source"] != "msa.pdf" || f["chunk_text"] != "Late payment penalty" {
		t.Errorf("unexpected fields %v", f)
	}
	if len(f["__vector"]) != testDim*4 {
		t.Errorf("vector bytes = %d", len(f["__vector"]))
	}
}

func TestRedis_Upsert_DimMismatch(t *testing.T) {
	ms := &mockStore{
		hsetMultiFn: func(context.Context, []db.HashSetItem) error {
			t.Fatal("nothing should be written")
			return nil
		},
	}
	err := NewRedis(ms, "idx", "", testDim).Upsert(context.Background(), []domain.Record{testRecord(0, "x", "s", 1, 2)})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestRedis_Upsert_StoreError(t *testing.T) {
	storeErr := &db.Error{Op: db.OpHSet, Err: errors.New("connection reset")}
	ms := &mockStore{
		hsetMultiFn: func(context.Context, []db.HashSetItem) error { return storeErr },
	}
	err := NewRedis(ms, "idx", "", testDim).Upsert(context.Background(), []domain.Record{testRecord(0, "x", "s", 1, 2, 3)})
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRedis_Fetch(t *testing.T) {
	rec := testRecord(4, "Governing law", "msa.pdf", 0.5, 0.5, 0)
	ms := &mockStore{
		hgetAllFn: func(_ context.Context, key string) (map[string]string, error) {
			if key != "docingest:idx:"+rec.ID {
				t.Errorf("unexpected key %q", key)
			}
			return buildHashFields(&rec), nil
		},
	}

	got, err := NewRedis(ms, "idx", "", testDim).Fetch(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != rec.ID || got.Metadata != rec.Metadata {
		t.Errorf("got %+v, want %+v", got, rec)
	}
	if len(got.Vector) != testDim || got.Vector[0] != 0.5 {
		t.Errorf("unexpected vector %v", got.Vector)
	}
}

func TestRedis_Fetch_NotFound(t *testing.T) {
	_, err := NewRedis(&mockStore{}, "idx", "", testDim).Fetch(context.Background(), "chunk_missing")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRedis_Query(t *testing.T) {
	rec := testRecord(2, "Late payment penalty", "msa.pdf", 0, 1, 0)
	var q *db.KNNQuery
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, query *db.KNNQuery) (*db.SearchResult, error) {
			q = query
			return &db.SearchResult{Total: 1, Entries: []db.SearchEntry{
				{Key: "docingest:idx:" + rec.ID, Score: 0.93, Fields: buildHashFields(&rec)},
			}}, nil
		},
	}

	matches, err := NewRedis(ms, "idx", "", testDim).
		Query(context.Background(), []float32{0, 1, 0}, 5, domain.QueryFilter{Source: "msa.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.IndexName != "docingest:idx:idx" || q.K != 5 {
		t.Errorf("unexpected query %+v", q)
	}
	if len(q.Filters) != 1 || q.Filters[0] != (db.TagFilter{Field: "source", Value: "msa.pdf"}) {
		t.Errorf("unexpected filters %v", q.Filters)
	}
	if len(matches) != 1 || matches[0].ID != rec.ID || matches[0].Score != 0.93 {
		t.Fatalf("unexpected matches %+v", matches)
	}
	if matches[0].Metadata.ChunkID != 2 {
		t.Errorf("ChunkID = %d", matches[0].Metadata.ChunkID)
	}
}

func TestRedis_Query_NoFilterZeroK(t *testing.T) {
	ms := &mockStore{
		searchKNNFn: func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
			if len(q.Filters) != 0 {
				t.Errorf("expected no filters, got %v", q.Filters)
			}
			return &db.SearchResult{}, nil
		},
	}
	r := NewRedis(ms, "idx", "", testDim)
	if m, err := r.Query(context.Background(), []float32{1, 0, 0}, 0, domain.QueryFilter{}); err != nil || m != nil {
		t.Errorf("topK 0: got %v, %v", m, err)
	}
	if _, err := r.Query(context.Background(), []float32{1, 0, 0}, 3, domain.QueryFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Exercises the rueidis store end to end: upsert pipelines HSETs, fetch reads the hash back.
func TestRedis_WithRueidisStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	rec := testRecord(0, "Confidentiality obligations", "nda.pdf", 1, 0, 0)
	key := "docingest:idx:" + rec.ID
	fields := buildHashFields(&rec)

	c.EXPECT().
		DoMulti(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == key
		})).
		Return([]rueidis.RedisResult{mock.Result(mock.RedisInt64(5))})

	reply := make(map[string]rueidis.RedisMessage, len(fields))
	for k, v := range fields {
		reply[k] = mock.RedisBlobString(v)
	}
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", key)).
		Return(mock.Result(mock.RedisMap(reply)))

	r := NewRedis(dbredis.NewStoreForTest(c), "idx", "", testDim)
	if err := r.Upsert(context.Background(), []domain.Record{rec}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.Fetch(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Metadata != rec.Metadata || len(got.Vector) != testDim || got.Vector[0] != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if v := bytesToVector("abc"); v != nil {
		t.Errorf("expected nil for 3 bytes, got %v", v)
	}
	if v := bytesToVector(""); v != nil {
		t.Errorf("expected nil for empty input, got %v", v)
	}
}
