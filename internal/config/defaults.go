package config

// DefaultEmbedBatchSize is the batch size used when EMBED_BATCH_SIZE is
// unset, matching the "≤500 chunks per batch" ceiling the embedding
// backfill loop enforces.
const DefaultEmbedBatchSize = 100
