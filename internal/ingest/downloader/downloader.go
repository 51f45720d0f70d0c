// Package downloader implements discovery and idempotent, resumable
// retrieval of weekly USPTO PTGRXML grant archives.
package downloader

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

var weekFilenameRe = regexp.MustCompile(`ipg(\d{8})\.zip`)

const streamChunkSize = 1 << 20 // 1 MiB, per the spec's streaming-write floor.

// Week is one discovered archive: an 8-digit week id and the URL it was
// found at.
type Week struct {
	ID  string
	URL string
}

// Downloader discovers and fetches weekly grant archives under dataRoot.
type Downloader struct {
	httpClient *http.Client
	dataRoot   string
	logger     logging.Logger
}

// New returns a Downloader rooted at dataRoot, using client for all HTTP
// calls (pass http.DefaultClient for production use; tests substitute a
// client backed by httptest.Server).
func New(client *http.Client, dataRoot string, logger logging.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{httpClient: client, dataRoot: dataRoot, logger: logger}
}

// DiscoverFromDatasetPage scrapes pageURL's HTML for href targets matching
// ipg{8 digits}.zip, resolves them against pageURL, dedupes by week id
// (first URL wins), and returns the result sorted descending by week id.
func (d *Downloader) DiscoverFromDatasetPage(ctx context.Context, pageURL string) ([]Week, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "failed to build dataset page request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkTransient, "dataset page request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errors.Newf(errors.CodeNetworkPermanent, "dataset page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkTransient, "failed to read dataset page body")
	}

	base, err := parseURL(pageURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "invalid dataset page url")
	}

	return parseDatasetPageLinks(string(body), base), nil
}

// searchRow is one row of a bulk-search result payload; extractSearchRows
// finds the row list in a top-level array under one of several field names.
type searchRow map[string]any

// DiscoverFromSearchAPI POSTs the PTGRXML bulk-search request, parses the
// response under results|items|data|response.docs, and derives a Week per
// row from a filename-shaped field, falling back to a date field's leading
// 8 digits; the result is deduped by week id (first URL wins) and sorted
// descending.
func (d *Downloader) DiscoverFromSearchAPI(ctx context.Context, apiURL, apiKey string, weeks int) ([]Week, error) {
	size := weeks * 4
	if size < 100 {
		size = 100
	}

	payload := map[string]any{
		"dataset": "PTGRXML",
		"page":    0,
		"size":    size,
		"sort":    []map[string]string{{"fileDataToDate": "desc"}},
	}
	body, err := marshalJSON(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "failed to build search api request")
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetworkTransient, "search api request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errors.Newf(errors.CodeNetworkPermanent, "search api returned status %d", resp.StatusCode)
	}

	rows, err := extractSearchRows(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseSearchRows(rows), nil
}

// DownloadWeek fetches url into {data_root}/raw/ptgrxml/ipg{week}/ipg{week}.zip,
// returning the final path. Idempotent: an existing non-empty final file is
// returned without a new request. A partial download resumes via an HTTP
// Range request.
func (d *Downloader) DownloadWeek(ctx context.Context, week, url string) (string, error) {
	dir := filepath.Join(d.dataRoot, "raw", "ptgrxml", "ipg"+week)
	final := filepath.Join(dir, "ipg"+week+".zip")
	partial := final + ".part"

	if info, err := os.Stat(final); err == nil && info.Size() > 0 {
		return final, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to create week directory").WithDetail(week)
	}

	var startOffset int64
	if info, err := os.Stat(partial); err == nil {
		startOffset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidation, "failed to build download request").WithDetail(week)
	}
	if startOffset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(startOffset, 10)+"-")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeNetworkTransient, "archive download failed").WithDetail(week)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", errors.Newf(errors.CodeNetworkPermanent, "archive download for week %s returned status %d", week, resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resp.StatusCode == http.StatusPartialContent {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to open partial download file").WithDetail(week)
	}

	buf := make([]byte, streamChunkSize)
	_, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if copyErr != nil {
		return "", errors.Wrap(copyErr, errors.CodeNetworkTransient, "archive stream copy failed").WithDetail(week)
	}
	if closeErr != nil {
		return "", errors.Wrap(closeErr, errors.CodeInternal, "failed to close partial download file").WithDetail(week)
	}

	if err := os.Rename(partial, final); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to finalize downloaded archive").WithDetail(week)
	}

	d.logger.Info("archive downloaded", logging.String("week", week))
	return final, nil
}

// dedupeAndSortDescending keeps the first URL seen per week id and sorts the
// result by week id descending.
func dedupeAndSortDescending(weeks []Week) []Week {
	seen := make(map[string]struct{}, len(weeks))
	out := make([]Week, 0, len(weeks))
	for _, w := range weeks {
		if _, ok := seen[w.ID]; ok {
			continue
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
