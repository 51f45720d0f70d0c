package patent

import (
	"strconv"
	"strings"

	"github.com/patentsearch/evidence-engine/internal/identity"
	"github.com/patentsearch/evidence-engine/internal/textnorm"
)

// SectionType classifies the part of a patent an EvidenceChunk's text was
// drawn from.
type SectionType string

const (
	SectionClaim       SectionType = "CLAIM"
	SectionAbstract    SectionType = "ABSTRACT"
	SectionSummary     SectionType = "SUMMARY"
	SectionDescription SectionType = "DESCRIPTION"
)

const (
	chunkMaxChars = 1200
	chunkOverlap  = 150
)

// EvidenceChunk is one retrievable unit of patent text, addressed by a
// stable content-derived ChunkID.
type EvidenceChunk struct {
	ChunkID           string
	PublicationNumber string
	SectionType       SectionType

	// Text is normalized. TextHash is the hex SHA-256 of Text.
	Text     string
	TextHash string

	// ClaimNum is set only for SectionClaim chunks.
	ClaimNum string

	// ParaID is the section-scoped ordinal key used to derive ChunkID for
	// non-claim sections; for claim chunks it equals ClaimNum.
	ParaID string

	IsDependent bool

	Metadata map[string]string
}

// BuildChunks derives the ordered list of EvidenceChunks for a PatentRecord:
// one chunk per claim, one abstract chunk if non-empty, and one chunk per
// split_with_overlap piece of every summary and description paragraph.
func BuildChunks(p PatentRecord) []EvidenceChunk {
	var chunks []EvidenceChunk

	for _, c := range p.Claims {
		chunks = append(chunks, newSectionChunk(p.PublicationNumber, SectionClaim, c.ClaimNum, c.Text, map[string]string{
			"claim_num":    c.ClaimNum,
			"is_dependent": strconv.FormatBool(c.IsDependent),
		}, c.ClaimNum, c.IsDependent))
	}

	if abstract := textnorm.Normalize(p.Abstract); abstract != "" {
		chunks = append(chunks, newSectionChunk(p.PublicationNumber, SectionAbstract, "abstract", abstract, nil, "", false))
	}

	chunks = append(chunks, buildParagraphChunks(p.PublicationNumber, SectionSummary, "s", p.SummaryParagraphs)...)
	chunks = append(chunks, buildParagraphChunks(p.PublicationNumber, SectionDescription, "d", p.DescriptionParagraphs)...)

	return chunks
}

func buildParagraphChunks(pub string, section SectionType, prefix string, paragraphs []string) []EvidenceChunk {
	var chunks []EvidenceChunk
	for paraIdx, para := range paragraphs {
		normalized := textnorm.Normalize(para)
		if normalized == "" {
			continue
		}
		pieces := SplitWithOverlap(normalized, chunkMaxChars, chunkOverlap)
		for pieceIdx, piece := range pieces {
			paraID := prefix + strconv.Itoa(paraIdx) + "_" + strconv.Itoa(pieceIdx)
			chunks = append(chunks, newSectionChunk(pub, section, paraID, piece, nil, "", false))
		}
	}
	return chunks
}

func newSectionChunk(pub string, section SectionType, key, text string, metadata map[string]string, claimNum string, isDependent bool) EvidenceChunk {
	return EvidenceChunk{
		ChunkID:           identity.ChunkID(pub, string(section), key, text),
		PublicationNumber: pub,
		SectionType:       section,
		Text:              text,
		TextHash:          identity.SHA256Hex(text),
		ClaimNum:          claimNum,
		ParaID:            key,
		IsDependent:       isDependent,
		Metadata:          metadata,
	}
}

// SplitWithOverlap splits text into ordered windows of at most maxChars
// characters, each window after the first beginning overlap characters
// before the previous window's end. A space within the last half of a
// window is preferred as the split point over a hard character cut. All
// returned pieces are trimmed of surrounding whitespace.
func SplitWithOverlap(text string, maxChars, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{strings.TrimSpace(text)}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end >= len(runes) {
			end = len(runes)
		} else if splitAt := preferredSplit(runes, start, end); splitAt > start {
			end = splitAt
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// preferredSplit looks for a space in the last half of runes[start:end] and
// returns its index (exclusive) if found, else end.
func preferredSplit(runes []rune, start, end int) int {
	half := start + (end-start)/2
	for i := end - 1; i > half; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return end
}
