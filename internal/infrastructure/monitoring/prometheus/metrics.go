package prometheus

import "time"

// IngestMetrics holds the counters and histograms the ingest pipeline and
// retrieval engine emit.
type IngestMetrics struct {
	ArchivesDownloadedTotal CounterVec
	ArchiveMembersTotal     CounterVec
	ParseFailuresTotal      CounterVec
	ChunksWrittenTotal      CounterVec
	EmbedBackfillDuration   HistogramVec
	EmbedBackfillBatchSize  HistogramVec

	SearchDuration    HistogramVec
	SearchResultCount HistogramVec
}

var (
	// DefaultIngestDurationBuckets suits per-week and per-batch operations
	// that run from sub-second up to several minutes.
	DefaultIngestDurationBuckets = []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600}
	// DefaultSearchDurationBuckets suits the sub-second latency a CLI search
	// invocation is expected to complete within.
	DefaultSearchDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5}
)

// NewIngestMetrics registers every ingest/retrieval metric against
// collector and returns the bound handles. Passing a nil collector (metrics
// disabled) is not supported; callers gate construction on METRICS_ADDR
// being set.
func NewIngestMetrics(collector MetricsCollector) *IngestMetrics {
	m := &IngestMetrics{}

	m.ArchivesDownloadedTotal = collector.RegisterCounter("archives_downloaded_total", "Weekly PTGRXML archives downloaded", "week", "status")
	m.ArchiveMembersTotal = collector.RegisterCounter("archive_members_total", "XML members processed within downloaded archives", "week")
	m.ParseFailuresTotal = collector.RegisterCounter("parse_failures_total", "Patent XML members that failed to parse", "week")
	m.ChunksWrittenTotal = collector.RegisterCounter("chunks_written_total", "Evidence chunks written to storage", "week")
	m.EmbedBackfillDuration = collector.RegisterHistogram("embed_backfill_duration_seconds", "Embedding backfill batch latency", DefaultIngestDurationBuckets)
	m.EmbedBackfillBatchSize = collector.RegisterHistogram("embed_backfill_batch_size", "Embedding backfill batch size", []float64{1, 8, 16, 32, 64, 128, 256})

	m.SearchDuration = collector.RegisterHistogram("patent_search_duration_seconds", "run_search latency", DefaultSearchDurationBuckets, "graph_expansion")
	m.SearchResultCount = collector.RegisterHistogram("patent_search_result_count", "run_search result count", []float64{0, 1, 5, 10, 25, 50, 100}, "graph_expansion")

	return m
}

// RecordArchiveDownload records the outcome of downloading one week's
// archive, where status is "ok", "not_found", or "error".
func RecordArchiveDownload(metrics *IngestMetrics, week, status string) {
	metrics.ArchivesDownloadedTotal.WithLabelValues(week, status).Inc()
}

// RecordParseFailure increments the per-week parse failure counter.
func RecordParseFailure(metrics *IngestMetrics, week string) {
	metrics.ParseFailuresTotal.WithLabelValues(week).Inc()
}

// RecordChunksWritten adds count to the per-week chunks-written counter.
func RecordChunksWritten(metrics *IngestMetrics, week string, count int) {
	metrics.ChunksWrittenTotal.WithLabelValues(week).Add(float64(count))
}

// RecordEmbedBackfillBatch records one embedding backfill batch's latency
// and size.
func RecordEmbedBackfillBatch(metrics *IngestMetrics, duration time.Duration, batchSize int) {
	metrics.EmbedBackfillDuration.WithLabelValues().Observe(duration.Seconds())
	metrics.EmbedBackfillBatchSize.WithLabelValues().Observe(float64(batchSize))
}

// RecordSearch records one run_search invocation's latency and hit count.
// graphExpansion is "none", "single_hop", or "multi_hop".
func RecordSearch(metrics *IngestMetrics, graphExpansion string, duration time.Duration, resultCount int) {
	metrics.SearchDuration.WithLabelValues(graphExpansion).Observe(duration.Seconds())
	metrics.SearchResultCount.WithLabelValues(graphExpansion).Observe(float64(resultCount))
}
