package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"leadscout-engine/internal/analysis"
	"leadscout-engine/internal/config"
	"leadscout-engine/internal/domain"
	"leadscout-engine/internal/events"
	"leadscout-engine/internal/ingest"
	"leadscout-engine/internal/rank"
)

// ProcessedSet is the "already processed" guard. Best-effort and eventually
// consistent: it does not mutually exclude overlapping invocations, it only
// keeps re-runs from re-storing a finished file.
type ProcessedSet interface {
	IsProcessed(ctx context.Context, filename string) (bool, error)
	ListProcessed(ctx context.Context) (map[string]bool, error)
	MarkProcessed(ctx context.Context, filename string, leadCount int) error
}

// Enricher attaches owner contact info; implementations must be best-effort
// and return the input unchanged on failure.
type Enricher interface {
	Enrich(ctx context.Context, listings []domain.Listing) ([]domain.Listing, []domain.MatchResult)
}

// Analyzer produces positioning text for one listing, degrading to a
// placeholder internally on error.
type Analyzer interface {
	Analyze(ctx context.Context, l domain.Listing) domain.Analysis
}

// Notifier delivers the end-of-run digest.
type Notifier interface {
	SendDigest(ctx context.Context, ranked []domain.Listing, total int) error
}

type Deps struct {
	Processed ProcessedSet
	Enricher  Enricher // nil when no skip-trace key is configured
	Analyzer  Analyzer
	Notifier  Notifier
	Hub       *events.Hub // optional

	// InsertLead persists one listing; injected for testability.
	InsertLead func(ctx context.Context, l domain.Listing, a domain.Analysis) error

	// Now is the scoring clock; defaults to time.Now.
	Now func() time.Time
}

type Summary struct {
	FilesProcessed int  `json:"files_processed"`
	LeadsStored    int  `json:"leads_stored"`
	LeadsEnriched  int  `json:"leads_enriched"`
	DigestSent     bool `json:"digest_sent"`
}

// Runner sequences one pipeline invocation: select unprocessed exports,
// normalize, score, enrich, analyze, store, then digest. Strictly
// sequential; every collaborator failure except storage-run errors degrades
// instead of aborting.
type Runner struct {
	cfg    config.Config
	scorer rank.Scorer
	deps   Deps
}

func NewRunner(cfg config.Config, scorer rank.Scorer, deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{cfg: cfg, scorer: scorer, deps: deps}
}

func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	candidates, err := ingest.ListExports(r.cfg.Inbox.Dir)
	if err != nil {
		return sum, err
	}

	done, err := r.deps.Processed.ListProcessed(ctx)
	if err != nil {
		return sum, fmt.Errorf("list processed files: %w", err)
	}

	var pending []string
	for _, name := range candidates {
		if !done[name] {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		// not an error: nothing new arrived
		log.Printf("[pipeline] no unprocessed exports in %s", r.cfg.Inbox.Dir)
		return sum, nil
	}

	r.publish("run_started", map[string]any{"files": len(pending)})

	var all []domain.Listing
	for _, name := range pending {
		listings, err := r.processFile(ctx, name, &sum)
		if err != nil {
			return sum, err
		}
		all = append(all, listings...)
		sum.FilesProcessed++
	}

	sortByScore(all)
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.SendDigest(ctx, all, len(all)); err != nil {
			// leads are already durably stored; a missed digest is not a
			// failed run
			log.Printf("[pipeline] digest failed: %v", err)
		} else {
			sum.DigestSent = true
			r.publish("digest_sent", map[string]any{"total": len(all)})
		}
	}

	r.publish("run_completed", sum)
	log.Printf("[pipeline] done files=%d leads=%d enriched=%d", sum.FilesProcessed, sum.LeadsStored, sum.LeadsEnriched)
	return sum, nil
}

// processFile runs normalize -> score -> enrich -> analyze -> store for one
// export. Per-record storage failures are logged and skipped; anything
// run-level propagates so the file is not marked processed.
func (r *Runner) processFile(ctx context.Context, name string, sum *Summary) ([]domain.Listing, error) {
	listings, err := ingest.LoadExport(r.cfg.Inbox.Dir, name, r.cfg.Market.State)
	if err != nil {
		return nil, err
	}
	log.Printf("[pipeline] file=%s listings=%d", name, len(listings))

	now := r.deps.Now()
	for i := range listings {
		listings[i].UrgencyScore = r.scorer.Score(listings[i], now)
	}

	if r.deps.Enricher != nil {
		var matches []domain.MatchResult
		listings, matches = r.deps.Enricher.Enrich(ctx, listings)
		sum.LeadsEnriched += len(matches)
		if len(matches) > 0 {
			log.Printf("[pipeline] file=%s skip-trace matches=%d (all weak-confidence)", name, len(matches))
		}
	}

	sortByScore(listings)

	deepLimit := r.cfg.Pipeline.DeepAnalysisLimit
	stored := 0
	for i, l := range listings {
		var a domain.Analysis
		if i < deepLimit && r.deps.Analyzer != nil {
			// Analyzer enforces the minimum inter-call delay itself.
			a = r.deps.Analyzer.Analyze(ctx, l)
		} else {
			a = analysis.Placeholder()
		}

		if err := r.deps.InsertLead(ctx, l, a); err != nil {
			log.Printf("[pipeline] store failed file=%s address=%q err=%v", name, l.Address, err)
			continue
		}
		stored++
		r.publish("lead_created", map[string]any{"address": l.Address, "score": l.UrgencyScore})
	}
	sum.LeadsStored += stored

	if err := r.deps.Processed.MarkProcessed(ctx, name, stored); err != nil {
		return nil, fmt.Errorf("mark processed %s: %w", name, err)
	}
	return listings, nil
}

func (r *Runner) publish(typ string, data any) {
	if r.deps.Hub != nil {
		r.deps.Hub.Publish(events.MakeEvent("", typ, 1, data))
	}
}

func sortByScore(ls []domain.Listing) {
	sort.SliceStable(ls, func(i, j int) bool {
		return ls[i].UrgencyScore > ls[j].UrgencyScore
	})
}
