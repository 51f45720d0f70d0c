// Package ingest drives the weekly USPTO grant-archive pipeline end to end:
// discover and download a week's PTGRXML archive, parse and CPC-filter its
// patents, derive evidence chunks, persist everything to the relational
// store and lexical index, and backfill embeddings for chunks that still
// lack one.
package ingest

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patentsearch/evidence-engine/internal/domain/patent"
	"github.com/patentsearch/evidence-engine/internal/embedding"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/neo4j"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/postgres"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/database/redis"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/messaging/kafka"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/storage/minio"
	"github.com/patentsearch/evidence-engine/internal/ingest/downloader"
	"github.com/patentsearch/evidence-engine/internal/parser"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

const ingestionSource = "ptgrxml"
const embedBackfillLimit = 500
const lockRetryDelay = 200 * time.Millisecond

// Options controls one Run invocation; it maps directly to the ingest CLI
// subcommand's flags.
type Options struct {
	Weeks       int
	CPCPrefix   string
	SinceLast   bool
	LockTimeout time.Duration
}

// WeekResult reports one week's outcome.
type WeekResult struct {
	Week             string `json:"week"`
	Skipped          bool   `json:"skipped"`
	PatentsIngested  int    `json:"patents_ingested"`
	ChunksWritten    int    `json:"chunks_written"`
	Error            string `json:"error,omitempty"`
}

// Result is Run's full return value.
type Result struct {
	Weeks                 []WeekResult `json:"weeks"`
	EmbeddingsBackfilled  int          `json:"embeddings_backfilled"`
}

// Orchestrator wires the downloader, parser, store, index, embedder, and
// every optional ambient collaborator. Optional fields left nil are
// skipped: the pipeline's correctness never depends on them.
type Orchestrator struct {
	Downloader *downloader.Downloader
	Store      *postgres.Store
	Indexer    Indexer
	Embedder   embedding.Provider
	Logger     logging.Logger

	DataRoot       string
	DatasetPageURL string
	SearchAPIURL   string
	APIKey         string
	EmbedBatchSize int

	Lock         *redis.DistributedLock
	Producer     *kafka.Producer
	GraphMirror  *neo4j.Mirror
	ObjectMirror *minio.Mirror
	Metrics      *prometheus.IngestMetrics
}

// Indexer is the lexical-index subset Orchestrator needs, narrowed for
// testing against a fake rather than a live OpenSearch cluster.
type Indexer interface {
	EnsureIndex(ctx context.Context) error
	IndexChunks(ctx context.Context, chunks []patent.EvidenceChunk) error
}

// Run executes the five-step ingest pipeline: acquire the run lock, ensure
// the index exists, select weeks to process, process each selected week,
// then drain the embedding backfill queue.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	if err := o.acquireLock(ctx, opts.LockTimeout); err != nil {
		return Result{}, err
	}
	if o.Lock != nil {
		defer o.releaseLock(ctx)
	}

	if err := os.MkdirAll(o.DataRoot, 0o755); err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "failed to create data root")
	}
	if err := o.Indexer.EnsureIndex(ctx); err != nil {
		return Result{}, err
	}

	discovered, err := o.discoverWeeks(ctx)
	if err != nil {
		return Result{}, err
	}

	processed, err := downloader.LoadProcessedWeeks(o.DataRoot)
	if err != nil {
		return Result{}, errors.Wrap(err, errors.CodeInternal, "failed to load processed weeks")
	}

	selected := downloader.SelectWeeks(discovered, opts.Weeks, opts.SinceLast, processed)

	var result Result
	for _, week := range skippedWeeks(discovered, selected, processed) {
		result.Weeks = append(result.Weeks, WeekResult{Week: week.ID, Skipped: true})
	}
	for _, week := range selected {
		wr := o.processWeek(ctx, week, opts.CPCPrefix, processed)
		result.Weeks = append(result.Weeks, wr)
	}

	backfilled, err := o.backfillEmbeddings(ctx)
	if err != nil {
		return result, err
	}
	result.EmbeddingsBackfilled = backfilled
	return result, nil
}

// skippedWeeks returns the discovered weeks already in processed that were
// excluded from selected, so Run can report them per spec.md §4.5's
// "already-processed weeks are still filtered (reported as skipped)".
func skippedWeeks(discovered, selected []downloader.Week, processed *downloader.ProcessedWeeks) []downloader.Week {
	inSelected := make(map[string]struct{}, len(selected))
	for _, w := range selected {
		inSelected[w.ID] = struct{}{}
	}
	var out []downloader.Week
	for _, w := range discovered {
		if _, ok := inSelected[w.ID]; ok {
			continue
		}
		if processed.Contains(w.ID) {
			out = append(out, w)
		}
	}
	return out
}

func (o *Orchestrator) acquireLock(ctx context.Context, timeout time.Duration) error {
	if o.Lock == nil {
		return nil
	}
	if timeout <= 0 {
		ok, err := o.Lock.TryLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return redis.ErrLockNotAcquired
		}
		return nil
	}
	return o.Lock.Lock(ctx, timeout, lockRetryDelay)
}

func (o *Orchestrator) releaseLock(ctx context.Context) {
	if err := o.Lock.Unlock(ctx); err != nil {
		o.Logger.Warn("failed to release ingest lock", logging.Err(err))
	}
}

func (o *Orchestrator) discoverWeeks(ctx context.Context) ([]downloader.Week, error) {
	weeks, err := o.Downloader.DiscoverFromDatasetPage(ctx, o.DatasetPageURL)
	if err == nil && len(weeks) > 0 {
		return weeks, nil
	}
	if err != nil {
		o.Logger.Warn("dataset page discovery failed, falling back to search api", logging.Err(err))
	}
	return o.Downloader.DiscoverFromSearchAPI(ctx, o.SearchAPIURL, o.APIKey, 52)
}

func (o *Orchestrator) processWeek(ctx context.Context, week downloader.Week, cpcPrefix string, processed *downloader.ProcessedWeeks) WeekResult {
	wr := WeekResult{Week: week.ID}

	archivePath, err := o.Downloader.DownloadWeek(ctx, week.ID, week.URL)
	if err != nil {
		o.recordDownload(week.ID, "error")
		wr.Error = err.Error()
		return wr
	}
	o.recordDownload(week.ID, "ok")
	if o.ObjectMirror != nil {
		if data, err := os.ReadFile(archivePath); err != nil {
			o.Logger.Warn("failed to read archive for minio mirror", logging.String("week", week.ID), logging.Err(err))
		} else if err := o.ObjectMirror.UploadArchive(ctx, week.ID, data); err != nil {
			o.Logger.Warn("minio archive mirror failed", logging.String("week", week.ID), logging.Err(err))
		}
	}

	records, err := o.parseArchive(ctx, week.ID, archivePath)
	if err != nil {
		wr.Error = err.Error()
		return wr
	}

	filtered := make([]patent.PatentRecord, 0, len(records))
	for _, rec := range records {
		if cpcPrefix == "" || patent.HasCPCPrefix(rec, cpcPrefix) {
			filtered = append(filtered, rec)
		}
	}

	var allChunks []patent.EvidenceChunk
	for _, rec := range filtered {
		if err := o.Store.UpsertPatent(ctx, rec); err != nil {
			wr.Error = err.Error()
			return wr
		}
		chunks := patent.BuildChunks(rec)
		allChunks = append(allChunks, chunks...)

		o.mirrorPatent(ctx, week.ID, rec)
	}

	if len(allChunks) > 0 {
		if err := o.Store.UpsertChunks(ctx, allChunks); err != nil {
			wr.Error = err.Error()
			return wr
		}
		if err := o.Indexer.IndexChunks(ctx, allChunks); err != nil {
			wr.Error = err.Error()
			return wr
		}
	}

	if err := o.writePatentSidecars(filtered); err != nil {
		o.Logger.Warn("failed to write patent sidecar files", logging.String("week", week.ID), logging.Err(err))
	}
	if err := o.writeChunksJSONL(week.ID, allChunks); err != nil {
		o.Logger.Warn("failed to write week chunks jsonl", logging.String("week", week.ID), logging.Err(err))
	}
	if o.ObjectMirror != nil {
		for _, rec := range filtered {
			if sidecar, err := json.Marshal(rec); err == nil {
				if err := o.ObjectMirror.UploadPatentJSON(context.Background(), week.ID, rec.PublicationNumber, sidecar); err != nil {
					o.Logger.Warn("minio sidecar mirror failed", logging.String("publication_number", rec.PublicationNumber), logging.Err(err))
				}
			}
		}
	}

	if err := processed.MarkProcessed(week.ID); err != nil {
		wr.Error = err.Error()
		return wr
	}
	if err := o.Store.SetLastWeek(ctx, ingestionSource, week.ID); err != nil {
		o.Logger.Warn("failed to record last week", logging.Err(err))
	}

	wr.PatentsIngested = len(filtered)
	wr.ChunksWritten = len(allChunks)
	o.recordChunksWritten(week.ID, len(allChunks))
	o.publishWeekIngested(ctx, week.ID, len(allChunks))
	return wr
}

// parseArchive opens the week's downloaded ZIP and parses every .xml member
// concurrently, bounded to runtime.NumCPU() workers.
func (o *Orchestrator) parseArchive(ctx context.Context, week, archivePath string) ([]patent.PatentRecord, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "failed to open week archive").WithDetail(week)
	}
	defer zr.Close()

	var members []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			members = append(members, f)
		}
	}

	results := make([][]patent.PatentRecord, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rc, err := member.Open()
			if err != nil {
				o.recordParseFailure(week)
				return nil
			}
			defer rc.Close()

			raw, err := io.ReadAll(rc)
			if err != nil {
				o.recordParseFailure(week)
				return nil
			}

			recs, err := parser.ParsePatents(raw)
			if err != nil {
				o.recordParseFailure(week)
				o.Logger.Warn("failed to parse archive member", logging.String("week", week), logging.String("member", member.Name), logging.Err(err))
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "archive parse worker failed").WithDetail(week)
	}

	var all []patent.PatentRecord
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all, nil
}

// writePatentSidecars writes one parsed/patents/{publication_number}.json
// file per accepted record.
func (o *Orchestrator) writePatentSidecars(records []patent.PatentRecord) error {
	dir := filepath.Join(o.DataRoot, "parsed", "patents")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, rec := range records {
		path := filepath.Join(dir, rec.PublicationNumber+".json")
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// writeChunksJSONL writes derived/chunks/ipg{week}.jsonl, one EvidenceChunk
// per line, for the week's accepted chunks.
func (o *Orchestrator) writeChunksJSONL(week string, chunks []patent.EvidenceChunk) error {
	dir := filepath.Join(o.DataRoot, "derived", "chunks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "ipg"+week+".jsonl")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) mirrorPatent(ctx context.Context, week string, rec patent.PatentRecord) {
	if o.GraphMirror == nil {
		return
	}
	if err := o.GraphMirror.UpsertPatent(ctx, rec.PublicationNumber, patent.DedupedCPCCodes(rec), rec.Citations); err != nil {
		o.Logger.Warn("neo4j mirror upsert failed", logging.String("publication_number", rec.PublicationNumber), logging.Err(err))
	}
}

func (o *Orchestrator) publishWeekIngested(ctx context.Context, week string, chunkCount int) {
	if o.Producer == nil {
		return
	}
	event := kafka.WeekIngestedEvent{Week: week, ChunkCount: chunkCount, IngestedAt: time.Now()}
	if err := o.Producer.PublishWeekIngested(ctx, event); err != nil {
		o.Logger.Warn("failed to publish week.ingested event", logging.String("week", week), logging.Err(err))
	}
}

// backfillEmbeddings drains fetch_chunks_missing_embeddings in batches of
// EmbedBatchSize until none remain, computing vectors via Embedder and
// writing them back via UpdateEmbeddings.
func (o *Orchestrator) backfillEmbeddings(ctx context.Context) (int, error) {
	batchSize := o.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	total := 0
	for {
		limit := batchSize
		if limit > embedBackfillLimit {
			limit = embedBackfillLimit
		}
		missing, err := o.Store.FetchChunksMissingEmbeddings(ctx, limit)
		if err != nil {
			return total, err
		}
		if len(missing) == 0 {
			return total, nil
		}

		texts := make([]string, len(missing))
		for i, m := range missing {
			texts[i] = m.Text
		}

		start := time.Now()
		vectors, err := o.Embedder.Embed(ctx, texts)
		if err != nil {
			return total, errors.Wrap(err, errors.CodeInternal, "embedding backfill failed")
		}
		o.recordEmbedBatch(time.Since(start), len(missing))

		pairs := make([]postgres.EmbeddingPair, len(missing))
		for i, m := range missing {
			pairs[i] = postgres.EmbeddingPair{ChunkID: m.ChunkID, Vector: vectors[i]}
		}
		if err := o.Store.UpdateEmbeddings(ctx, pairs); err != nil {
			return total, err
		}

		total += len(missing)
		if len(missing) < limit {
			return total, nil
		}
	}
}

func (o *Orchestrator) recordDownload(week, status string) {
	if o.Metrics != nil {
		prometheus.RecordArchiveDownload(o.Metrics, week, status)
	}
}

func (o *Orchestrator) recordParseFailure(week string) {
	if o.Metrics != nil {
		prometheus.RecordParseFailure(o.Metrics, week)
	}
}

func (o *Orchestrator) recordChunksWritten(week string, count int) {
	if o.Metrics != nil {
		prometheus.RecordChunksWritten(o.Metrics, week, count)
	}
}

func (o *Orchestrator) recordEmbedBatch(d time.Duration, size int) {
	if o.Metrics != nil {
		prometheus.RecordEmbedBackfillBatch(o.Metrics, d, size)
	}
}
