package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"leadscout-engine/internal/analysis"
	"leadscout-engine/internal/config"
	"leadscout-engine/internal/domain"
	"leadscout-engine/internal/events"
	"leadscout-engine/internal/httpapi"
	"leadscout-engine/internal/ingest/mailbox"
	"leadscout-engine/internal/notify"
	"leadscout-engine/internal/pipeline"
	"leadscout-engine/internal/rank"
	"leadscout-engine/internal/scheduler"
	"leadscout-engine/internal/secrets"
	"leadscout-engine/internal/skiptrace"
	"leadscout-engine/internal/store"
)

func main() {
	// Local overrides (API keys etc.); a missing .env is fine.
	_ = godotenv.Load()

	dataDir := os.Getenv("LEADSCOUT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine process per data dir: two processes sharing the SQLite
	// file corrupt the single-writer assumption. This does NOT serialize
	// pipeline invocations inside one process.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("data dir lock: %v", err)
	}
	if !locked {
		log.Fatalf("another engine instance already owns %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		normalized, vr := config.NormalizeAndValidate(cfg)
		if !vr.OK() {
			return cfg, fmt.Errorf("config invalid: %v", vr.Errors)
		}
		for _, warn := range vr.Warnings {
			log.Printf("[config] warning: %s", warn)
		}
		return normalized, nil
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	db, err := store.Open(filepath.Join(dataDir, "leads.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := store.Migrate(db.Pool); err != nil {
		log.Fatal(err)
	}

	hub := events.NewHub()

	var runStatus atomic.Value // stores httpapi.RunStatus
	runStatus.Store(httpapi.RunStatus{})

	runPipeline := func(ctx context.Context, cfg config.Config) (pipeline.Summary, error) {
		pullMailbox(ctx, cfg)
		r := pipeline.NewRunner(cfg, rank.UrgencyScorer{}, buildDeps(cfg, db, hub))
		return r.Run(ctx)
	}

	mux := httpapi.NewMux(httpapi.Deps{
		DB:          db.Pool,
		Hub:         hub,
		CfgVal:      &cfgVal,
		RunStatus:   &runStatus,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
		RunPipeline: runPipeline,
	})

	addr := "127.0.0.1:38561"
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("engine listening on http://%s (data=%s)", addr, dataDir)

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Pipeline.ScheduleMinutes > 0 {
		interval := time.Duration(cfg.Pipeline.ScheduleMinutes) * time.Minute
		g.Go(func() error {
			scheduler.Every(ctx, interval, "schedule", func(ctx context.Context) error {
				return scheduledTick(ctx, &cfgVal, &runStatus, runPipeline)
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

// scheduledTick is the timed trigger body: same status bookkeeping as the
// on-demand POST, skipping the tick when a run is still in flight.
func scheduledTick(ctx context.Context, cfgVal, runStatus *atomic.Value,
	run func(ctx context.Context, cfg config.Config) (pipeline.Summary, error)) error {

	st := runStatus.Load().(httpapi.RunStatus)
	if st.Running {
		log.Printf("[schedule] previous run still in flight, skipping tick")
		return nil
	}
	runStatus.Store(httpapi.RunStatus{
		LastRunAt: time.Now().Format(time.RFC3339),
		Running:   true,
		LastOkAt:  st.LastOkAt,
	})

	cfg := cfgVal.Load().(config.Config)
	sum, err := run(ctx, cfg)

	now := time.Now().Format(time.RFC3339)
	next := runStatus.Load().(httpapi.RunStatus)
	next.Running = false
	next.LastRunAt = now
	next.FilesDone = sum.FilesProcessed
	next.LeadsStored = sum.LeadsStored
	if err != nil {
		next.LastError = err.Error()
	} else {
		next.LastError = ""
		next.LastOkAt = now
		log.Printf("[schedule] run ok files=%d leads=%d", sum.FilesProcessed, sum.LeadsStored)
	}
	runStatus.Store(next)
	return err
}

// buildDeps assembles the pipeline collaborators from one config snapshot.
// Enrichment only gets wired when skip-trace is enabled and a key resolves.
func buildDeps(cfg config.Config, db *store.DB, hub *events.Hub) pipeline.Deps {
	deps := pipeline.Deps{
		Processed: store.ProcessedFiles{DB: db.Pool},
		Hub:       hub,
		InsertLead: func(ctx context.Context, l domain.Listing, a domain.Analysis) error {
			return store.InsertLead(ctx, db.Pool, l, a)
		},
	}

	if cfg.SkipTrace.Enabled {
		if key := secrets.GetSkipTraceKey(); key != "" {
			c := skiptrace.New(cfg.SkipTrace.BaseURL, key)
			c.PollInterval = time.Duration(cfg.SkipTrace.PollSeconds) * time.Second
			c.MaxAttempts = cfg.SkipTrace.MaxAttempts
			deps.Enricher = c
		} else {
			log.Printf("[engine] skip-trace enabled but no key configured, running unenriched")
		}
	}

	deps.Analyzer = analysis.New(cfg.Analysis.BaseURL, secrets.GetAnalysisKey(),
		time.Duration(cfg.Analysis.MinDelaySeconds)*time.Second)
	deps.Notifier = notify.New(cfg.Notify.WebhookURL, cfg.Notify.TopN)

	return deps
}

// pullMailbox drains export attachments into the inbox dir before the run.
// Soft-fail: email being down never blocks processing of files already
// on disk.
func pullMailbox(ctx context.Context, cfg config.Config) {
	if !cfg.Mailbox.Enabled {
		return
	}
	account := secrets.IMAPKeyringAccount(cfg.Mailbox.Username, cfg.Mailbox.IMAPHost)
	password, err := secrets.GetIMAPPassword(account)
	if err != nil {
		log.Printf("[mailbox] skipped: %v", err)
		return
	}

	saved, err := mailbox.PullExports(ctx, mailbox.Config{
		Host:     cfg.Mailbox.IMAPHost,
		Port:     cfg.Mailbox.IMAPPort,
		Username: cfg.Mailbox.Username,
		Password: password,
		FromAny:  cfg.Mailbox.FromAny,
	}, cfg.Inbox.Dir)
	if err != nil {
		log.Printf("[mailbox] pull failed: %v", err)
		return
	}
	if len(saved) > 0 {
		log.Printf("[mailbox] pulled %d export(s)", len(saved))
	}
}
