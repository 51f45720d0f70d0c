package patent

// IngestionState maps an ingest source identifier (e.g. "ptgrxml") to the
// most recent week identifier (YYYYMMDD) successfully processed for that
// source. The orchestrator mutates it at the end of each successfully
// processed week, never mid-week.
type IngestionState struct {
	Source   string
	LastWeek string
}
