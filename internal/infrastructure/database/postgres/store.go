// Package postgres provides connection pool management, transaction
// handling, health-check utilities, and the canonical relational store for
// the evidence engine.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/patentsearch/evidence-engine/internal/domain/patent"
	appErrors "github.com/patentsearch/evidence-engine/pkg/errors"
)

// Store is the single authoritative home for patents, their CPC/citation
// associations, evidence chunks, chunk embeddings, and ingestion-progress
// bookkeeping. Every method takes its own context and is safe for
// concurrent use; the underlying pool manages connection lifetimes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool. Callers obtain pool via
// NewConnectionPool and Close it during shutdown.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetLastWeek returns the last week id successfully processed for source,
// or "" if source has never been recorded.
func (s *Store) GetLastWeek(ctx context.Context, source string) (string, error) {
	var lastWeek string
	err := s.pool.QueryRow(ctx,
		`SELECT last_week FROM ingestion_state WHERE source = $1`, source,
	).Scan(&lastWeek)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.CodeDBQueryError, "get last week failed").WithDetail(source)
	}
	return lastWeek, nil
}

// SetLastWeek records week as the last week processed for source.
func (s *Store) SetLastWeek(ctx context.Context, source, week string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_state (source, last_week, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source) DO UPDATE SET last_week = EXCLUDED.last_week, updated_at = now()
	`, source, week)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "set last week failed").WithDetail(source)
	}
	return nil
}

// UpsertPatent inserts or overwrites the patent row keyed by
// PublicationNumber, then replaces its CPC and citation association rows
// within the same transaction: the existing rows are deleted and the
// record's current rows reinserted, so a patent re-ingested with fewer
// citations or CPC codes than before does not retain stale associations.
func (s *Store) UpsertPatent(ctx context.Context, p patent.PatentRecord) error {
	rawJSON, err := json.Marshal(p.Raw)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeSerialization, "marshal patent raw fields failed").WithDetail(p.PublicationNumber)
	}

	err = WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO patents (publication_number, grant_date, title, abstract_text, summary_text, description_text, raw_json, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (publication_number) DO UPDATE SET
				grant_date = EXCLUDED.grant_date,
				title = EXCLUDED.title,
				abstract_text = EXCLUDED.abstract_text,
				summary_text = EXCLUDED.summary_text,
				description_text = EXCLUDED.description_text,
				raw_json = EXCLUDED.raw_json,
				updated_at = now()
		`, p.PublicationNumber, p.GrantDate, p.Title, p.Abstract,
			joinLines(p.SummaryParagraphs), joinLines(p.DescriptionParagraphs), rawJSON)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM patent_citations WHERE citing_publication = $1`, p.PublicationNumber); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM patent_cpc WHERE publication_number = $1`, p.PublicationNumber); err != nil {
			return err
		}

		for _, cited := range p.Citations {
			if _, err := tx.Exec(ctx, `
				INSERT INTO patent_citations (citing_publication, cited_publication)
				VALUES ($1, $2) ON CONFLICT DO NOTHING
			`, p.PublicationNumber, cited); err != nil {
				return err
			}
		}

		for _, code := range patent.DedupedCPCCodes(p) {
			if _, err := tx.Exec(ctx, `
				INSERT INTO patent_cpc (publication_number, cpc_code)
				VALUES ($1, $2) ON CONFLICT DO NOTHING
			`, p.PublicationNumber, code); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "upsert patent failed").WithDetail(p.PublicationNumber)
	}
	return nil
}

// UpsertChunks upserts each chunk keyed by ChunkID, updating text, metadata,
// and the per-section key fields on conflict. The embedding column is never
// touched here; it is written exclusively by UpdateEmbeddings.
func (s *Store) UpsertChunks(ctx context.Context, chunks []patent.EvidenceChunk) error {
	err := WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		for _, c := range chunks {
			metadataJSON, err := json.Marshal(c.Metadata)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO chunks (chunk_id, publication_number, section_type, claim_num, para_id, is_dependent, text, text_hash, metadata, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
				ON CONFLICT (chunk_id) DO UPDATE SET
					text = EXCLUDED.text,
					metadata = EXCLUDED.metadata,
					claim_num = EXCLUDED.claim_num,
					para_id = EXCLUDED.para_id,
					is_dependent = EXCLUDED.is_dependent,
					updated_at = now()
			`, c.ChunkID, c.PublicationNumber, string(c.SectionType), nullableString(c.ClaimNum), nullableString(c.ParaID), c.IsDependent, c.Text, c.TextHash, metadataJSON); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "upsert chunks failed")
	}
	return nil
}

// ChunkText pairs a chunk id with its text, as returned by
// FetchChunksMissingEmbeddings.
type ChunkText struct {
	ChunkID string
	Text    string
}

// FetchChunksMissingEmbeddings returns up to limit (chunk_id, text) pairs
// for chunks with a null embedding. No ordering is guaranteed.
func (s *Store) FetchChunksMissingEmbeddings(ctx context.Context, limit int) ([]ChunkText, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, text FROM chunks WHERE embedding IS NULL LIMIT $1`, limit,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "fetch chunks missing embeddings failed")
	}
	defer rows.Close()

	var out []ChunkText
	for rows.Next() {
		var ct ChunkText
		if err := rows.Scan(&ct.ChunkID, &ct.Text); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "scan chunk missing embedding failed")
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "iterate chunks missing embeddings failed")
	}
	return out, nil
}

// EmbeddingPair pairs a chunk id with its newly computed embedding vector.
type EmbeddingPair struct {
	ChunkID string
	Vector  []float32
}

// UpdateEmbeddings writes each pair's vector into the chunk's embedding
// column. A chunk whose text hash has changed since the vector was computed
// may end up with a stale embedding until it is re-embedded by a subsequent
// backfill pass; this method does not check text_hash.
func (s *Store) UpdateEmbeddings(ctx context.Context, pairs []EmbeddingPair) error {
	err := WithTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range pairs {
			if _, err := tx.Exec(ctx,
				`UPDATE chunks SET embedding = $1, updated_at = now() WHERE chunk_id = $2`,
				pgvector.NewVector(p.Vector), p.ChunkID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeDBQueryError, "update embeddings failed")
	}
	return nil
}

// VectorHit is one result row of VectorSearch.
type VectorHit struct {
	ChunkID           string
	PublicationNumber string
	Text              string
	SectionType       string
	Score             float64
}

// VectorSearch returns the top-k chunks by cosine similarity
// (1 - cosine_distance) to queryEmbedding among chunks with a non-null
// embedding, ordered by distance ascending (score descending).
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, topK int) ([]VectorHit, error) {
	vec := pgvector.NewVector(queryEmbedding)
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, publication_number, text, section_type, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, vec, topK)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "vector search failed")
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ChunkID, &h.PublicationNumber, &h.Text, &h.SectionType, &h.Score); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "scan vector search row failed")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "iterate vector search rows failed")
	}
	return hits, nil
}

// GraphNeighbors returns the union of (a) publications cited by any of
// publications, and (b) publications sharing a CPC subclass (the
// split_part(cpc_code, '/', 1) "broader" variant, chosen per the relational
// store's documented design decision) with any of publications. Each
// branch is bounded independently by limit.
func (s *Store) GraphNeighbors(ctx context.Context, publications []string, limit int) ([]string, error) {
	neighbors := make(map[string]struct{})

	citedRows, err := s.pool.Query(ctx, `
		SELECT DISTINCT cited_publication FROM patent_citations
		WHERE citing_publication = ANY($1) LIMIT $2
	`, publications, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "graph neighbors citation query failed")
	}
	for citedRows.Next() {
		var pub string
		if err := citedRows.Scan(&pub); err != nil {
			citedRows.Close()
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "scan cited publication failed")
		}
		neighbors[pub] = struct{}{}
	}
	citedErr := citedRows.Err()
	citedRows.Close()
	if citedErr != nil {
		return nil, appErrors.Wrap(citedErr, appErrors.CodeDBQueryError, "iterate cited publications failed")
	}

	cpcRows, err := s.pool.Query(ctx, `
		SELECT DISTINCT pc2.publication_number
		FROM patent_cpc pc1
		JOIN patent_cpc pc2 ON split_part(pc1.cpc_code, '/', 1) = split_part(pc2.cpc_code, '/', 1)
		WHERE pc1.publication_number = ANY($1)
		LIMIT $2
	`, publications, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "graph neighbors cpc query failed")
	}
	for cpcRows.Next() {
		var pub string
		if err := cpcRows.Scan(&pub); err != nil {
			cpcRows.Close()
			return nil, appErrors.Wrap(err, appErrors.CodeDBQueryError, "scan cpc neighbor failed")
		}
		neighbors[pub] = struct{}{}
	}
	cpcErr := cpcRows.Err()
	cpcRows.Close()
	if cpcErr != nil {
		return nil, appErrors.Wrap(cpcErr, appErrors.CodeDBQueryError, "iterate cpc neighbors failed")
	}

	out := make([]string, 0, len(neighbors))
	for pub := range neighbors {
		out = append(out, pub)
	}
	return out, nil
}

func joinLines(paragraphs []string) string {
	if len(paragraphs) == 0 {
		return ""
	}
	out := paragraphs[0]
	for _, p := range paragraphs[1:] {
		out += "\n" + p
	}
	return out
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
