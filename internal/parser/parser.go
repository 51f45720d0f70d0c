// Package parser extracts PatentRecords from raw USPTO grant XML. Matching
// is namespace-agnostic: grant archives carry inconsistent namespace
// prefixes across years, so every lookup here is by local element name only.
package parser

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/patentsearch/evidence-engine/internal/domain/patent"
	"github.com/patentsearch/evidence-engine/internal/textnorm"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

var summaryNames = map[string]bool{
	"summary":               true,
	"summary-of-invention": true,
}

var descriptionNames = map[string]bool{
	"description":         true,
	"detailed-description": true,
}

// ParsePatents splits raw into one or more concatenated/enclosed
// us-patent-grant documents and parses each into a PatentRecord. Records
// missing a publication number are skipped silently; a malformed XML byte
// stream fails the whole call.
func ParsePatents(raw []byte) ([]patent.PatentRecord, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))

	var records []patent.PatentRecord
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidation, "malformed patent grant xml")
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "us-patent-grant" {
			continue
		}

		var root node
		if err := decoder.DecodeElement(&root, &se); err != nil {
			return nil, errors.Wrap(err, errors.CodeValidation, "malformed us-patent-grant element")
		}

		if rec, ok := parseOne(root); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseOne(root node) (patent.PatentRecord, bool) {
	pubNumber, grantDate, raw := parsePublicationReference(root)
	if pubNumber == "" {
		return patent.PatentRecord{}, false
	}

	rec := patent.PatentRecord{
		PublicationNumber: pubNumber,
		GrantDate:         grantDate,
		Title:             parseTitle(root),
		Abstract:          parseAbstract(root),
		Claims:            parseClaims(root),
		CPCCodes:          parseCPCCodes(root),
		Citations:         parseCitations(root),
		Raw:               raw,
	}
	rec.SummaryParagraphs, rec.DescriptionParagraphs = parseSummaryAndDescription(root)
	return rec, true
}

func parsePublicationReference(root node) (pubNumber, grantDate string, raw map[string]string) {
	raw = map[string]string{}

	pubRef, ok := firstDescendant(root, "publication-reference")
	if !ok {
		return "", "", raw
	}
	docID, ok := firstDescendant(pubRef, "document-id")
	if !ok {
		return "", "", raw
	}
	if docNum, ok := firstDescendant(docID, "doc-number"); ok {
		pubNumber = textnorm.Normalize(innerText(docNum))
		raw["doc_number"] = pubNumber
	}
	if date, ok := firstDescendant(docID, "date"); ok {
		grantDate = textnorm.Normalize(innerText(date))
		raw["date"] = grantDate
	}
	if country, ok := firstDescendant(docID, "country"); ok {
		raw["country"] = textnorm.Normalize(innerText(country))
	}
	if kind, ok := firstDescendant(docID, "kind"); ok {
		raw["kind"] = textnorm.Normalize(innerText(kind))
	}
	return pubNumber, grantDate, raw
}

func parseTitle(root node) string {
	titleNode, ok := firstDescendant(root, "invention-title")
	if !ok {
		return ""
	}
	return textnorm.Normalize(innerText(titleNode))
}

func parseAbstract(root node) string {
	abstractNode, ok := firstDescendant(root, "abstract")
	if !ok {
		return ""
	}
	var parts []string
	for _, p := range collectDescendants(abstractNode, "p") {
		parts = append(parts, innerText(p))
	}
	return textnorm.Normalize(joinSpace(parts))
}

func parseSummaryAndDescription(root node) (summary, description []string) {
	for _, sec := range sectionNodes(root, summaryNames) {
		for _, p := range collectDescendants(sec, "p") {
			summary = append(summary, innerText(p))
		}
	}

	for _, sec := range sectionNodes(root, descriptionNames) {
		description = append(description, paragraphsExcluding(sec, summaryNames)...)
	}
	return summary, description
}

func parseClaims(root node) []patent.Claim {
	claimsNode, ok := firstDescendant(root, "claims")
	if !ok {
		return nil
	}

	children := directChildren(claimsNode, "claim")
	claims := make([]patent.Claim, 0, len(children))
	for idx, cn := range children {
		claimNum := claimNumOf(cn, idx)
		text := claimTextOf(cn)
		claims = append(claims, patent.NewClaim(claimNum, text))
	}
	return claims
}

func claimNumOf(claimNode node, positionalIndex int) string {
	if num, ok := claimNode.attr("num"); ok && textnorm.Normalize(num) != "" {
		return textnorm.Normalize(num)
	}
	if cn, ok := firstDescendant(claimNode, "claim-num"); ok {
		if text := textnorm.Normalize(innerText(cn)); text != "" {
			return text
		}
	}
	return strconv.Itoa(positionalIndex + 1)
}

func claimTextOf(claimNode node) string {
	texts := collectDescendants(claimNode, "claim-text")
	if len(texts) == 0 {
		return innerText(claimNode)
	}
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, innerText(t))
	}
	return joinSpace(parts)
}

func parseCPCCodes(root node) []string {
	var codes []string
	for _, cn := range collectDescendants(root, "classification-cpc-text") {
		if code := textnorm.Normalize(innerText(cn)); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

func parseCitations(root node) []string {
	var citations []string
	for _, refs := range collectDescendants(root, "references-cited") {
		for _, dn := range collectDescendants(refs, "doc-number") {
			if num := textnorm.Normalize(innerText(dn)); num != "" {
				citations = append(citations, num)
			}
		}
	}
	return citations
}

func joinSpace(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	total := len(parts) - 1
	for _, p := range parts {
		total += len(p)
	}
	buf := make([]byte, 0, total)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, p...)
	}
	return string(buf)
}
