// Package kafka carries the ingest pipeline's two optional side channels: a
// per-week completion event for observers, and a work queue an
// out-of-process embedder can drain instead of the default in-process
// polling loop. Neither topic is on the read path of any spec-mandated
// operation; both are skipped silently when unconfigured.
package kafka

import "time"

const (
	// TopicWeekIngested carries one event per completed ingest week.
	TopicWeekIngested = "week.ingested"

	// TopicEmbedBackfill carries one task per chunk awaiting an embedding,
	// drained by cmd/embedder when EMBED_QUEUE_BROKERS is configured.
	TopicEmbedBackfill = "embed.backfill"
)

// WeekIngestedEvent is published after mark_processed succeeds for a week.
type WeekIngestedEvent struct {
	Week       string    `json:"week"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// EmbedBackfillTask carries one chunk's text to be embedded and written back
// by UpdateEmbeddings.
type EmbedBackfillTask struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}
