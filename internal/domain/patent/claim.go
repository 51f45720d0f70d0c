// Package patent contains the evidence engine's core data model: the
// PatentRecord parsed from grant XML, its constituent Claims, the
// EvidenceChunks derived from it for retrieval, and the IngestionState that
// tracks ingest progress.
package patent

import (
	"regexp"

	"github.com/patentsearch/evidence-engine/internal/textnorm"
)

// dependencyCueRe matches the phrase a dependent claim uses to incorporate an
// earlier claim by reference, e.g. "The system of claim 1, wherein ...".
var dependencyCueRe = regexp.MustCompile(`(?i)\b(?:claim|claims)\s+(\d+)`)

// Claim is one claim of a PatentRecord.
type Claim struct {
	// ClaimNum is the claim number as it appears in the document, typically
	// numeric but carried as a string since positional fallback numbering can
	// produce non-sequential values.
	ClaimNum string

	// Text is the normalized claim text.
	Text string

	// IsDependent is true iff DependsOn is non-empty or Text matches the
	// dependency cue pattern.
	IsDependent bool

	// DependsOn is the ordered, possibly empty, list of claim numbers this
	// claim references.
	DependsOn []string
}

// NewClaim constructs a Claim, normalizing text and deriving IsDependent and
// DependsOn from the dependency cue pattern in the (already normalized) text.
// claimNum is taken as given: callers are responsible for resolving the num
// attribute / claim-num element / positional-ordinal fallback before calling.
func NewClaim(claimNum, text string) Claim {
	normalized := textnorm.Normalize(text)
	dependsOn := parseDependsOn(normalized)
	return Claim{
		ClaimNum:    claimNum,
		Text:        normalized,
		IsDependent: len(dependsOn) > 0,
		DependsOn:   dependsOn,
	}
}

// parseDependsOn returns the ordered list of claim numbers referenced by the
// dependency cue pattern `\b(claim|claims)\s+\d+` (case-insensitive).
func parseDependsOn(text string) []string {
	matches := dependencyCueRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
