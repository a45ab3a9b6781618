// Package pipeline holds the statistics record produced by one ingestion run.
package pipeline

import "time"

// Stage is a state of the ingestion state machine.
type Stage string

// Pipeline stages in execution order. StageError is reachable from any stage.
const (
	StageStart     Stage = "start"
	StageParsing   Stage = "parsing"
	StageChunking  Stage = "chunking"
	StageSelecting Stage = "selecting"
	StageEmbedding Stage = "embedding"
	StageUploading Stage = "uploading"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// Status is the overall outcome of a run.
type Status string

// Run status values.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusError      Status = "error"
)

// UploadStatus is the outcome of the upload stage.
type UploadStatus string

// Upload status values.
const (
	UploadSuccess UploadStatus = "success"
	UploadPartial UploadStatus = "partial"
)

// Selection strategies.
const (
	StrategyRelevance = "relevance"
	StrategySampled   = "sampled"
)

// ParsingStats is recorded when parsing completes.
type ParsingStats struct {
	Time  float64 `json:"time"`
	Pages int     `json:"pages"`
}

// ChunkingStats is recorded when chunking completes.
type ChunkingStats struct {
	Time   float64 `json:"time"`
	Chunks int     `json:"total_chunks"`
}

// SelectionStats is recorded when selection completes.
// Reduction is the share of chunks dropped, in percent.
type SelectionStats struct {
	Time      float64 `json:"time"`
	Selected  int     `json:"selected_chunks"`
	Strategy  string  `json:"strategy"`
	Reduction float64 `json:"reduction"`
}

// EmbeddingStats is recorded when embedding completes.
type EmbeddingStats struct {
	Time          float64 `json:"time"`
	Embedded      int     `json:"chunks_embedded"`
	CacheHits     int     `json:"cache_hits"`
	CacheMisses   int     `json:"cache_misses"`
	Requests      int     `json:"model_requests"`
	CachedEntries int     `json:"cached_embeddings"`
}

// UploadStats is recorded when the upload stage completes.
type UploadStats struct {
	Time          float64      `json:"time"`
	Total         int          `json:"total_chunks"`
	Uploaded      int          `json:"uploaded_chunks"`
	Skipped       int          `json:"skipped_chunks"`
	FailedBatches int          `json:"failed_batches"`
	Status        UploadStatus `json:"status"`
}

// Metrics are derived once the pipeline reaches StageComplete.
type Metrics struct {
	DocumentsProcessed int     `json:"documents_processed"`
	TotalPages         int     `json:"total_pages"`
	ChunksCreated      int     `json:"total_chunks_created"`
	ChunksSelected     int     `json:"chunks_selected"`
	ChunksUploaded     int     `json:"chunks_uploaded"`
	EmbeddingReduction float64 `json:"embedding_reduction"`
	TimePerPage        float64 `json:"time_per_page"`
	Throughput         float64 `json:"throughput"`
}

// Stats accumulates per-stage timing and counts for one run.
// A nil stage record means that stage did not complete.
type Stats struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Query     string    `json:"query,omitempty"`
	Status    Status    `json:"status"`
	Stage     Stage     `json:"stage"`
	Error     string    `json:"error,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	StartedAt time.Time `json:"start_time"`
	TotalTime float64   `json:"total_time"`

	Parsing   *ParsingStats   `json:"parsing,omitempty"`
	Chunking  *ChunkingStats  `json:"chunking,omitempty"`
	Selection *SelectionStats `json:"selection,omitempty"`
	Embedding *EmbeddingStats `json:"embedding,omitempty"`
	Upload    *UploadStats    `json:"upload,omitempty"`
	Metrics   *Metrics        `json:"metrics,omitempty"`
}

// NewStats starts a stats record in StageStart.
func NewStats(runID, source, query string, now time.Time) *Stats {
	return &Stats{
		RunID:     runID,
		Source:    source,
		Query:     query,
		Status:    StatusProcessing,
		Stage:     StageStart,
		StartedAt: now,
	}
}

// Warn records a non-fatal problem.
func (s *Stats) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// Fail moves the run to StageError. Stage records already filled stay as they are.
func (s *Stats) Fail(err error, now time.Time) {
	s.Stage = StageError
	s.Status = StatusError
	if err != nil {
		s.Error = err.Error()
	}
	s.TotalTime = now.Sub(s.StartedAt).Seconds()
}

// Complete moves the run to StageComplete and derives the aggregate metrics.
// It returns false when the document had no pages; rates are then reported as 0.
func (s *Stats) Complete(now time.Time) bool {
	s.Stage = StageComplete
	s.TotalTime = now.Sub(s.StartedAt).Seconds()

	s.Status = StatusCompleted
	if s.Upload != nil && s.Upload.Status == UploadPartial {
		s.Status = StatusPartial
	}

	m := &Metrics{DocumentsProcessed: 1}
	if s.Parsing != nil {
		m.TotalPages = s.Parsing.Pages
	}
	if s.Chunking != nil {
		m.ChunksCreated = s.Chunking.Chunks
	}
	if s.Selection != nil {
		m.ChunksSelected = s.Selection.Selected
	}
	if s.Upload != nil {
		m.ChunksUploaded = s.Upload.Uploaded
	}
	m.EmbeddingReduction = Reduction(m.ChunksCreated, m.ChunksSelected)
	s.Metrics = m

	if m.TotalPages == 0 {
		return false
	}
	if s.TotalTime > 0 {
		m.TimePerPage = s.TotalTime / float64(m.TotalPages)
		m.Throughput = float64(m.TotalPages) / s.TotalTime
	}
	return true
}

// Reduction returns the percentage of created chunks that were not kept.
// Zero created chunks yield 0.
func Reduction(created, kept int) float64 {
	if created <= 0 {
		return 0
	}
	return float64(created-kept) * 100 / float64(created)
}
