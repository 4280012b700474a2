package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout-engine/internal/config"
	"leadscout-engine/internal/domain"
	"leadscout-engine/internal/rank"
)

const exportHeader = "Street Number,Street Name,Street Suffix,City,Zip Code,Current Price,Status Change Date,DOM,CDOM,Beds,Year Built\n"

func writeExport(t *testing.T, dir, name string, rows ...string) {
	t.Helper()
	content := exportHeader
	for _, r := range rows {
		content += r + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type fakeProcessed struct {
	done    map[string]bool
	marked  map[string]int
	markErr error
}

func newFakeProcessed() *fakeProcessed {
	return &fakeProcessed{done: map[string]bool{}, marked: map[string]int{}}
}

func (f *fakeProcessed) IsProcessed(_ context.Context, name string) (bool, error) {
	return f.done[name], nil
}

func (f *fakeProcessed) ListProcessed(_ context.Context) (map[string]bool, error) {
	return f.done, nil
}

func (f *fakeProcessed) MarkProcessed(_ context.Context, name string, leadCount int) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.done[name] = true
	f.marked[name] = leadCount
	return nil
}

type fakeEnricher struct {
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, ls []domain.Listing) ([]domain.Listing, []domain.MatchResult) {
	f.calls++
	var matches []domain.MatchResult
	for i := range ls {
		if ls[i].City == "Fort Worth" {
			ls[i].OwnerName = "Traced Owner"
			matches = append(matches, domain.MatchResult{
				ListingAddress: ls[i].Address,
				Confidence:     domain.ConfidenceWeak,
			})
		}
	}
	return ls, matches
}

type fakeAnalyzer struct {
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, l domain.Listing) domain.Analysis {
	f.calls++
	return domain.Analysis{WhyNotSold: "analyzed " + l.Address}
}

type fakeNotifier struct {
	ranked []domain.Listing
	total  int
	calls  int
	err    error
}

func (f *fakeNotifier) SendDigest(_ context.Context, ranked []domain.Listing, total int) error {
	f.calls++
	f.ranked = ranked
	f.total = total
	return f.err
}

type insertRecord struct {
	address     string
	score       float64
	placeholder bool
}

func testConfig(inbox string) config.Config {
	var cfg config.Config
	cfg.Inbox.Dir = inbox
	cfg.Market.State = "TX"
	cfg.Pipeline.DeepAnalysisLimit = 2
	return cfg
}

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
}

func TestRun_RanksEnrichesAndStores(t *testing.T) {
	inbox := t.TempDir()
	writeExport(t, inbox, "export.csv",
		"100,Oak,St,Fort Worth,76102,140000,2026-08-30,200,450,3,2016",
		"200,Elm,St,Austin,78701,650000,2026-07-03,30,30,6,1975",
		"300,Pine,Ave,Dallas,75201,210000,2026-08-27,95,150,4,2005",
	)

	processed := newFakeProcessed()
	enricher := &fakeEnricher{}
	analyzer := &fakeAnalyzer{}
	notifier := &fakeNotifier{}

	var inserted []insertRecord
	r := NewRunner(testConfig(inbox), rank.UrgencyScorer{}, Deps{
		Processed: processed,
		Enricher:  enricher,
		Analyzer:  analyzer,
		Notifier:  notifier,
		InsertLead: func(_ context.Context, l domain.Listing, a domain.Analysis) error {
			inserted = append(inserted, insertRecord{l.Address, l.UrgencyScore, a.Placeholder})
			return nil
		},
		Now: fixedNow,
	})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.FilesProcessed)
	assert.Equal(t, 3, sum.LeadsStored)
	assert.Equal(t, 1, sum.LeadsEnriched)
	assert.True(t, sum.DigestSent)

	// stored highest urgency first
	require.Len(t, inserted, 3)
	assert.Equal(t, "100 Oak St", inserted[0].address)
	assert.Equal(t, 10.0, inserted[0].score)
	assert.Equal(t, "300 Pine Ave", inserted[1].address)
	assert.Equal(t, "200 Elm St", inserted[2].address)

	// only the top of the ranking gets deep analysis
	assert.Equal(t, 2, analyzer.calls)
	assert.False(t, inserted[0].placeholder)
	assert.False(t, inserted[1].placeholder)
	assert.True(t, inserted[2].placeholder)

	assert.Equal(t, 3, processed.marked["export.csv"])

	require.Len(t, notifier.ranked, 3)
	assert.Equal(t, "100 Oak St", notifier.ranked[0].Address)
	assert.Equal(t, 3, notifier.total)
}

func TestRun_SkipsAlreadyProcessedFiles(t *testing.T) {
	inbox := t.TempDir()
	writeExport(t, inbox, "old.csv",
		"100,Oak,St,Fort Worth,76102,140000,2026-08-30,200,450,3,2016",
	)

	processed := newFakeProcessed()
	processed.done["old.csv"] = true
	notifier := &fakeNotifier{}

	inserts := 0
	r := NewRunner(testConfig(inbox), rank.UrgencyScorer{}, Deps{
		Processed: processed,
		Notifier:  notifier,
		InsertLead: func(context.Context, domain.Listing, domain.Analysis) error {
			inserts++
			return nil
		},
		Now: fixedNow,
	})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.FilesProcessed)
	assert.Zero(t, inserts)
	assert.Zero(t, notifier.calls)
}

func TestRun_MissingInboxIsNotAnError(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "does-not-exist"))
	r := NewRunner(cfg, rank.UrgencyScorer{}, Deps{
		Processed: newFakeProcessed(),
		InsertLead: func(context.Context, domain.Listing, domain.Analysis) error {
			t.Fatal("unexpected insert")
			return nil
		},
	})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.FilesProcessed)
}

func TestRun_DigestFailureIsSoft(t *testing.T) {
	inbox := t.TempDir()
	writeExport(t, inbox, "export.csv",
		"100,Oak,St,Fort Worth,76102,140000,2026-08-30,200,450,3,2016",
	)

	processed := newFakeProcessed()
	r := NewRunner(testConfig(inbox), rank.UrgencyScorer{}, Deps{
		Processed:  processed,
		Notifier:   &fakeNotifier{err: errors.New("webhook down")},
		InsertLead: func(context.Context, domain.Listing, domain.Analysis) error { return nil },
		Now:        fixedNow,
	})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.DigestSent)
	assert.Equal(t, 1, sum.LeadsStored)
	assert.True(t, processed.done["export.csv"])
}

func TestRun_StoreFailuresSkipRecordsButMarkFile(t *testing.T) {
	inbox := t.TempDir()
	writeExport(t, inbox, "export.csv",
		"100,Oak,St,Fort Worth,76102,140000,2026-08-30,200,450,3,2016",
		"200,Elm,St,Austin,78701,650000,2026-07-03,30,30,6,1975",
	)

	processed := newFakeProcessed()
	r := NewRunner(testConfig(inbox), rank.UrgencyScorer{}, Deps{
		Processed: processed,
		InsertLead: func(_ context.Context, l domain.Listing, _ domain.Analysis) error {
			if l.Address == "200 Elm St" {
				return errors.New("constraint violation")
			}
			return nil
		},
		Now: fixedNow,
	})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.LeadsStored)
	assert.Equal(t, 1, processed.marked["export.csv"])
}

func TestRun_MarkProcessedErrorAborts(t *testing.T) {
	inbox := t.TempDir()
	writeExport(t, inbox, "export.csv",
		"100,Oak,St,Fort Worth,76102,140000,2026-08-30,200,450,3,2016",
	)

	processed := newFakeProcessed()
	processed.markErr = errors.New("disk full")

	r := NewRunner(testConfig(inbox), rank.UrgencyScorer{}, Deps{
		Processed:  processed,
		InsertLead: func(context.Context, domain.Listing, domain.Analysis) error { return nil },
		Now:        fixedNow,
	})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark processed")
}
