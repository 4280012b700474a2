package skiptrace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"leadscout-engine/internal/domain"
	"leadscout-engine/internal/ingest"
)

// Client runs one asynchronous batch per export file against the skip-trace
// service: submit, poll, download, match back. Every stage is best-effort;
// a failure anywhere returns the original listings unenriched.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter

	// Poll policy. The bounded attempt budget is the only cancellation
	// mechanism; there is no explicit cancel call at the service.
	PollInterval time.Duration
	MaxAttempts  int
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(2), 2),

		PollInterval: 10 * time.Second,
		MaxAttempts:  12,
	}
}

// Enrich attaches owner contact info to whichever listings the service can
// resolve. Never fails the caller: on any error the input comes back as-is.
func (c *Client) Enrich(ctx context.Context, listings []domain.Listing) ([]domain.Listing, []domain.MatchResult) {
	if len(listings) == 0 || c.apiKey == "" {
		return listings, nil
	}

	queueID, err := c.SubmitBatch(ctx, listings)
	if err != nil {
		log.Printf("[skiptrace] submit failed: %v", err)
		return listings, nil
	}
	log.Printf("[skiptrace] batch submitted queue=%s size=%d", queueID, len(listings))

	resultURL, ok := c.PollUntilReady(ctx, queueID)
	if !ok {
		log.Printf("[skiptrace] queue=%s never completed, skipping enrichment", queueID)
		return listings, nil
	}

	contacts, err := c.DownloadResults(ctx, resultURL)
	if err != nil {
		log.Printf("[skiptrace] download failed queue=%s: %v", queueID, err)
		return listings, nil
	}
	log.Printf("[skiptrace] queue=%s contacts=%d", queueID, len(contacts))

	return MatchBack(listings, contacts)
}

// batchColumns is the full column set the service requires to accept an
// upload. The identity and mailing columns are mandatory in the schema but
// submitted empty; the service fills them.
var batchColumns = []string{
	"address", "city", "state", "zip",
	"first_name", "last_name", "mail_address", "mail_city", "mail_zip",
}

// SubmitBatch uploads the listings as a multipart CSV with explicit
// column-mapping parameters and returns the queue id.
func (c *Client) SubmitBatch(ctx context.Context, listings []domain.Listing) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("csv_file", "batch.csv")
	if err != nil {
		return "", fmt.Errorf("skiptrace build form: %w", err)
	}
	if _, err := part.Write(buildPayload(listings)); err != nil {
		return "", fmt.Errorf("skiptrace write payload: %w", err)
	}
	for _, col := range batchColumns {
		if err := w.WriteField(col+"_column", col); err != nil {
			return "", fmt.Errorf("skiptrace write field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("skiptrace close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/lists", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("skiptrace submit: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("skiptrace submit status %d: %s", res.StatusCode, string(b))
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("skiptrace submit decode: %w", err)
	}
	id := firstString(payload, "queue_id", "queueId", "list_id", "id")
	if id == "" {
		return "", fmt.Errorf("skiptrace submit response has no queue id")
	}
	return id, nil
}

// buildPayload renders the submission CSV. Addresses can carry embedded
// commas (unit numbers), so fields are quoted when needed.
func buildPayload(listings []domain.Listing) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(batchColumns, ","))
	b.WriteByte('\n')
	for _, l := range listings {
		row := []string{l.Address, l.City, l.State, l.Zip, "", "", "", "", ""}
		for i, f := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(csvField(f))
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// PollUntilReady checks the batch status on a fixed interval until the
// service reports completion or the attempt budget runs out. Transient
// status-check failures burn an attempt and continue rather than aborting.
func (c *Client) PollUntilReady(ctx context.Context, queueID string) (resultURL string, ok bool) {
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(c.PollInterval):
		}

		url, done, err := c.checkStatus(ctx, queueID)
		if err != nil {
			log.Printf("[skiptrace] poll attempt=%d queue=%s err=%v", attempt, queueID, err)
			continue
		}
		if done && url != "" {
			return url, true
		}
	}
	return "", false
}

// checkStatus accepts the service's several completion spellings: a status
// of completed/complete/done, or an explicit pending=false, plus a result
// URL under any of its known field names. The vocabulary is a compatibility
// contract with the live service; don't narrow it.
func (c *Client) checkStatus(ctx context.Context, queueID string) (resultURL string, done bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/lists/"+queueID, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.hc.Do(req)
	if err != nil {
		return "", false, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", false, fmt.Errorf("status %d", res.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", false, err
	}

	status := strings.ToLower(firstString(payload, "status", "state"))
	switch status {
	case "completed", "complete", "done":
		done = true
	}
	if pending, found := payload["pending"]; found {
		if b, isBool := pending.(bool); isBool && !b {
			done = true
		}
	}

	resultURL = firstString(payload, "result_url", "resultUrl", "download_url", "downloadUrl", "file_url", "url")
	return resultURL, done, nil
}

// DownloadResults fetches the finished batch file (the URL is pre-signed,
// no auth) and parses it with the normalized-header tokenizer.
func (c *Client) DownloadResults(ctx context.Context, resultURL string) ([]domain.ContactRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skiptrace download: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("skiptrace download status %d", res.StatusCode)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("skiptrace read results: %w", err)
	}

	var contacts []domain.ContactRecord
	for _, rec := range ingest.ParseTableLooseKeys(string(b)) {
		contacts = append(contacts, domain.ContactRecord(rec))
	}
	return contacts, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
