package neo4j

import (
	"context"

	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// Mirror is a best-effort, publication-number-keyed supplemental graph of
// the citation and CPC relationships already authoritative in Postgres. It
// exists solely to answer multi-hop questions ("citations of citations",
// "CPC-neighbors of CPC-neighbors") that sit outside the single-hop
// graph_neighbors contract; it is never read by graph_neighbors itself.
type Mirror struct {
	driver *Driver
}

// NewMirror wraps an already-connected Driver. Callers that have no
// NEO4J_URI configured should not construct a Mirror at all; every
// orchestrator and retrieval call site treats a nil *Mirror as "mirror
// unconfigured" and skips it.
func NewMirror(driver *Driver) *Mirror {
	return &Mirror{driver: driver}
}

// UpsertPatent MERGEs a Patent node for pub and its CITES/HAS_CPC edges,
// mirroring the association rows UpsertPatent already wrote to Postgres.
// Existing edges for pub are not deleted first: a shrinking association set
// leaves stale edges in the mirror until the next full resync, which is an
// acceptable trade-off for best-effort infrastructure that is never on the
// authoritative read path.
func (m *Mirror) UpsertPatent(ctx context.Context, pub string, cpcCodes, citations []string) error {
	_, err := m.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (p:Patent {publication_number: $pub})`, map[string]any{"pub": pub}); err != nil {
			return nil, err
		}
		if len(citations) > 0 {
			if _, err := tx.Run(ctx, `
				UNWIND $cited AS citedPub
				MATCH (p:Patent {publication_number: $pub})
				MERGE (c:Patent {publication_number: citedPub})
				MERGE (p)-[:CITES]->(c)
			`, map[string]any{"pub": pub, "cited": citations}); err != nil {
				return nil, err
			}
		}
		if len(cpcCodes) > 0 {
			if _, err := tx.Run(ctx, `
				UNWIND $codes AS code
				MATCH (p:Patent {publication_number: $pub})
				MERGE (c:CPCCode {code: code})
				MERGE (p)-[:HAS_CPC]->(c)
			`, map[string]any{"pub": pub, "codes": cpcCodes}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeDBQueryError, "neo4j mirror upsert failed").WithDetail(pub)
	}
	return nil
}

// ExpandMultiHop returns publications reachable from seeds within hops
// citation steps, unioned with publications sharing a CPC code with one of
// the seeds themselves (the CPC branch does not follow citations). Bounded
// by limit.
func (m *Mirror) ExpandMultiHop(ctx context.Context, seeds []string, hops, limit int) ([]string, error) {
	if hops < 1 {
		hops = 1
	}
	result, err := m.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (seed:Patent)
			WHERE seed.publication_number IN $seeds
			MATCH (seed)-[:CITES*1..`+hopsLiteral(hops)+`]->(citing:Patent)
			WITH collect(DISTINCT citing.publication_number) AS viaCitations
			MATCH (seed2:Patent)-[:HAS_CPC]->(code:CPCCode)<-[:HAS_CPC]-(sharing:Patent)
			WHERE seed2.publication_number IN $seeds AND sharing.publication_number <> seed2.publication_number
			WITH viaCitations, collect(DISTINCT sharing.publication_number) AS viaCpc
			RETURN viaCitations + viaCpc AS neighbors
		`, map[string]any{"seeds": seeds})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		return res.Record().Values[0], nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDBQueryError, "neo4j multi-hop expansion failed")
	}
	if result == nil {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, v := range result.([]any) {
		pub, ok := v.(string)
		if !ok {
			continue
		}
		if _, dup := seen[pub]; dup {
			continue
		}
		seen[pub] = struct{}{}
		out = append(out, pub)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// hopsLiteral renders hops as a Cypher variable-length path bound. Cypher
// does not support parameterizing relationship hop counts, so this is
// interpolated directly; hops is always an internally computed int, never
// user input.
func hopsLiteral(hops int) string {
	digits := "0123456789"
	if hops <= 0 {
		return "1"
	}
	var b []byte
	for hops > 0 {
		b = append([]byte{digits[hops%10]}, b...)
		hops /= 10
	}
	return string(b)
}
