// Package proto defines the shared message types for grop's internal admin
// RPC surface — building indexes and searching them from a remote client —
// hand-written for zero-dependency usage over the lightweight JSON-over-TCP
// RPC layer in pkg/grpc.
package proto

// ---------- Common ----------

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Build ----------

// BuildRequest asks the daemon to build (or rebuild) a trigram index for a
// source file.
type BuildRequest struct {
	SourcePath string `json:"source_path"`
}

// BuildResponse reports the outcome of a build, mirroring the CLI's build
// report (chunk count, trigram count, source and index sizes).
type BuildResponse struct {
	SourcePath   string `json:"source_path"`
	IndexPath    string `json:"index_path"`
	ChunkCount   uint32 `json:"chunk_count"`
	TrigramCount uint32 `json:"trigram_count"`
	SourceBytes  int64  `json:"source_bytes"`
	IndexBytes   int64  `json:"index_bytes"`
	BuildMillis  int64  `json:"build_millis"`
}

// EnqueueResponse acknowledges that a build request was published to the
// build-request topic; the actual build runs asynchronously on a worker
// and its completion is reported on the build-complete topic, not here.
type EnqueueResponse struct {
	SourcePath string `json:"source_path"`
	Accepted   bool   `json:"accepted"`
}

// ---------- Search ----------

// SearchRequest is the input to the Search RPC: a regular expression to
// match against lines of the named source file, using its catalog-resolved
// index to prune candidate chunks.
type SearchRequest struct {
	SourcePath string `json:"source_path"`
	Pattern    string `json:"pattern"`
	Limit      int32  `json:"limit"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Pattern      string      `json:"pattern"`
	TotalMatches int32       `json:"total_matches"`
	Matches      []LineMatch `json:"matches"`
	LatencyMs    int64       `json:"latency_ms"`
	CacheHit     bool        `json:"cache_hit"`
}

// LineMatch is a single matched line, 1-indexed per spec.md's line-number
// convention.
type LineMatch struct {
	LineNumber int64  `json:"line_number"`
	Text       string `json:"text"`
}

// ---------- Catalog ----------

// StatsRequest carries a source-path filter ("" = all). The daemon's
// CatalogService.List handler does not read it and always returns every
// entry.
type StatsRequest struct {
	SourcePath string `json:"source_path"`
}

// StatsResponse contains catalog-level statistics for registered indexes.
type StatsResponse struct {
	Entries []CatalogEntry `json:"entries"`
}

// CatalogEntry mirrors an internal/catalog row.
type CatalogEntry struct {
	SourcePath   string `json:"source_path"`
	IndexPath    string `json:"index_path"`
	ChunkCount   uint32 `json:"chunk_count"`
	TrigramCount uint32 `json:"trigram_count"`
	BuiltAtUnix  int64  `json:"built_at_unix"`
}
