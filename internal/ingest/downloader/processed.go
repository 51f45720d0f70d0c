package downloader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// ProcessedWeeks is the JSON-serialized sorted set of week ids already
// ingested, persisted under {data_root}/raw/processed_weeks.json. Writes are
// whole-file replacements; concurrent ingests against the same data root are
// not supported.
type ProcessedWeeks struct {
	path string
	set  map[string]struct{}
}

// LoadProcessedWeeks reads the persisted set, treating a missing file as
// empty.
func LoadProcessedWeeks(dataRoot string) (*ProcessedWeeks, error) {
	path := filepath.Join(dataRoot, "raw", "processed_weeks.json")
	pw := &ProcessedWeeks{path: path, set: map[string]struct{}{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pw, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read processed weeks file")
	}

	var weeks []string
	if err := json.Unmarshal(data, &weeks); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode processed weeks file")
	}
	for _, w := range weeks {
		pw.set[w] = struct{}{}
	}
	return pw, nil
}

// Contains reports whether week has already been marked processed.
func (pw *ProcessedWeeks) Contains(week string) bool {
	_, ok := pw.set[week]
	return ok
}

// MarkProcessed adds week to the set and rewrites the backing file in full.
func (pw *ProcessedWeeks) MarkProcessed(week string) error {
	pw.set[week] = struct{}{}

	weeks := make([]string, 0, len(pw.set))
	for w := range pw.set {
		weeks = append(weeks, w)
	}
	sort.Strings(weeks)

	data, err := json.Marshal(weeks)
	if err != nil {
		return errors.Wrap(err, errors.CodeSerialization, "failed to encode processed weeks file")
	}
	if err := os.MkdirAll(filepath.Dir(pw.path), 0o755); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create processed weeks directory")
	}
	if err := os.WriteFile(pw.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to write processed weeks file")
	}
	return nil
}

// SelectWeeks returns the first n of discovered (already sorted descending
// by week id) not present in processed, preserving discovery order.
// sinceLast does not change the filtering: already-processed weeks are
// always excluded, regardless of its value.
func SelectWeeks(discovered []Week, n int, sinceLast bool, processed *ProcessedWeeks) []Week {
	_ = sinceLast
	var selected []Week
	for _, w := range discovered {
		if processed.Contains(w.ID) {
			continue
		}
		selected = append(selected, w)
		if len(selected) >= n {
			break
		}
	}
	return selected
}
