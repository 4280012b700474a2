package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"leadscout-engine/internal/domain"
)

// PlaceholderNote marks listings past the deep-analysis cap. They still
// reach storage, just without generated positioning text.
const PlaceholderNote = "Analysis pending - high volume batch"

// Client calls the text-analysis collaborator for one listing at a time.
// The limiter enforces the minimum spacing between calls; the external
// service rate-limits hard, so the delay is a floor, not a target.
type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func New(baseURL, apiKey string, minDelay time.Duration) *Client {
	if minDelay <= 0 {
		minDelay = time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
	}
}

// Placeholder is the soft-failure / over-cap analysis value.
func Placeholder() domain.Analysis {
	return domain.Analysis{WhyNotSold: PlaceholderNote, Placeholder: true}
}

// Analyze requests positioning text for a scored listing. Any error
// degrades to the placeholder; analysis never fails a run.
func (c *Client) Analyze(ctx context.Context, l domain.Listing) domain.Analysis {
	if c.baseURL == "" || c.apiKey == "" {
		return Placeholder()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Placeholder()
	}

	text, err := c.complete(ctx, buildPrompt(l))
	if err != nil {
		log.Printf("[analysis] call failed mls=%s: %v", l.MLSNumber, err)
		return Placeholder()
	}
	return ParseSections(text)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{"prompt": prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis post: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("analysis status %d: %s", res.StatusCode, string(b))
	}

	var payload struct {
		Text       string `json:"text"`
		Completion string `json:"completion"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("analysis decode: %w", err)
	}
	if payload.Text != "" {
		return payload.Text, nil
	}
	return payload.Completion, nil
}

func buildPrompt(l domain.Listing) string {
	return fmt.Sprintf(`You are a listing strategist for an expired-listing outreach team.

Property: %s, %s, %s %s
Price: %s | Beds: %s | Baths: %s | SqFt: %s | Year built: %s
DOM: %s | CDOM: %s | Previous agent: %s (%s)
Urgency score: %.1f / 10

Respond with exactly these sections:
WHY IT DIDN'T SELL
<two or three sentences>

BERNARD'S ANGLE
<how Bernard should position his pitch to this seller>

TALKING POINTS
1. <point>
2. <point>
3. <point>`,
		l.Address, l.City, l.State, l.Zip,
		l.Price, l.Beds, l.Baths, l.SqFt, l.YearBuilt,
		l.DOM, l.CDOM, l.AgentName, l.OfficeName,
		l.UrgencyScore)
}
