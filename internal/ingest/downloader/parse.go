package downloader

import (
	"encoding/json"
	"io"
	"net/url"
	"regexp"

	"github.com/patentsearch/evidence-engine/pkg/errors"
)

var hrefRe = regexp.MustCompile(`href\s*=\s*["']([^"']+)["']`)

// parseDatasetPageLinks extracts every href matching ipg{8 digits}.zip from
// html, resolves it against base, and returns the deduped, descending-sorted
// result.
func parseDatasetPageLinks(html string, base *url.URL) []Week {
	var weeks []Week
	for _, m := range hrefRe.FindAllStringSubmatch(html, -1) {
		href := m[1]
		idMatch := weekFilenameRe.FindStringSubmatch(href)
		if idMatch == nil {
			continue
		}
		resolved := resolveURL(base, href)
		weeks = append(weeks, Week{ID: idMatch[1], URL: resolved})
	}
	return dedupeAndSortDescending(weeks)
}

func resolveURL(base *url.URL, ref string) string {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsedRef).String()
}

func parseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal request body")
	}
	return data, nil
}

// extractSearchRows decodes body and returns the row list found under
// results|items|data|response.docs, in that preference order.
func extractSearchRows(body io.Reader) ([]searchRow, error) {
	var parsed map[string]any
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to decode search api response")
	}

	for _, key := range []string{"results", "items", "data"} {
		if raw, ok := parsed[key]; ok {
			return toSearchRows(raw), nil
		}
	}
	if response, ok := parsed["response"].(map[string]any); ok {
		if docs, ok := response["docs"]; ok {
			return toSearchRows(docs), nil
		}
	}
	return nil, nil
}

func toSearchRows(raw any) []searchRow {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]searchRow, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			out = append(out, searchRow(row))
		}
	}
	return out
}

var filenameFields = []string{"fileName", "filename", "name", "downloadFileName"}
var dateFields = []string{"fileDataToDate", "fileDataFromDate", "fileDate"}
var urlFields = []string{"downloadUrl", "fileDownloadUrl", "url"}

// parseSearchRows derives a Week per row: the week id from a filename-shaped
// field if one matches ipg{8 digits}.zip, else from the first 8 digits of a
// date field; the URL from the first populated url field. Rows yielding no
// id are skipped.
func parseSearchRows(rows []searchRow) []Week {
	var weeks []Week
	for _, row := range rows {
		id := weekIDFromRow(row)
		if id == "" {
			continue
		}
		downloadURL := firstStringField(row, urlFields)
		weeks = append(weeks, Week{ID: id, URL: downloadURL})
	}
	return dedupeAndSortDescending(weeks)
}

func weekIDFromRow(row searchRow) string {
	if name := firstStringField(row, filenameFields); name != "" {
		if m := weekFilenameRe.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	if date := firstStringField(row, dateFields); len(date) >= 8 {
		digits := extractLeadingDigits(date, 8)
		if digits != "" {
			return digits
		}
	}
	return ""
}

func extractLeadingDigits(s string, n int) string {
	digits := make([]byte, 0, n)
	for i := 0; i < len(s) && len(digits) < n; i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < n {
		return ""
	}
	return string(digits)
}

func firstStringField(row searchRow, fields []string) string {
	for _, f := range fields {
		if v, ok := row[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
