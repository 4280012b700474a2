package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadscout-engine/internal/domain"
)

// DigestEntry is one line of the ranked summary sent downstream.
type DigestEntry struct {
	Rank       int     `json:"rank"`
	Address    string  `json:"address"`
	City       string  `json:"city"`
	Price      string  `json:"price"`
	Score      float64 `json:"score"`
	OwnerPhone string  `json:"ownerPhone,omitempty"`
}

type Digest struct {
	TotalProcessed int           `json:"totalProcessed"`
	Top            []DigestEntry `json:"top"`
	GeneratedAt    string        `json:"generatedAt"`
}

// Notifier posts the run digest to a webhook. Failures are the caller's to
// log; a missed digest never fails a run since leads are already stored.
type Notifier struct {
	hc         *http.Client
	webhookURL string
	topN       int
}

func New(webhookURL string, topN int) *Notifier {
	if topN <= 0 {
		topN = 10
	}
	return &Notifier{
		hc:         &http.Client{Timeout: 15 * time.Second},
		webhookURL: webhookURL,
		topN:       topN,
	}
}

// SendDigest posts the top-N listings (already sorted by score descending)
// plus the total processed count.
func (n *Notifier) SendDigest(ctx context.Context, ranked []domain.Listing, total int) error {
	if n.webhookURL == "" {
		return nil
	}

	top := ranked
	if len(top) > n.topN {
		top = top[:n.topN]
	}

	d := Digest{
		TotalProcessed: total,
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for i, l := range top {
		d.Top = append(d.Top, DigestEntry{
			Rank:       i + 1,
			Address:    l.Address,
			City:       l.City,
			Price:      l.Price,
			Score:      l.UrgencyScore,
			OwnerPhone: l.OwnerPhone,
		})
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal digest: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return fmt.Errorf("digest webhook status %d: %s", res.StatusCode, string(b))
	}
	return nil
}
