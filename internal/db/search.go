package db

// DefaultVectorField is the vector attribute KNN queries address when KNNQuery.VectorField is empty.
const DefaultVectorField = "vector"

// TagFilter restricts a search to records whose TAG field equals Value.
type TagFilter struct {
	Field string
	Value string
}

// KNNQuery is a vector similarity search over an HNSW field.
type KNNQuery struct {
	IndexName    string
	VectorField  string
	Filters      []TagFilter
	Vector       []float32
	K            int
	EFRuntime    int // HNSW query-time candidate list; zero keeps the index default
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity in [0, 1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
