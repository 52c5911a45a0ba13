package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elonfeng/paperpulse/internal/config"
	"github.com/elonfeng/paperpulse/internal/httputil"
	"github.com/elonfeng/paperpulse/internal/logger"
	"github.com/elonfeng/paperpulse/internal/scheduler"
	"github.com/elonfeng/paperpulse/internal/store"
	"github.com/elonfeng/paperpulse/pkg/alert"
	"github.com/elonfeng/paperpulse/pkg/cache"
	"github.com/elonfeng/paperpulse/pkg/collector"
	"github.com/elonfeng/paperpulse/pkg/engagement"
	"github.com/elonfeng/paperpulse/pkg/server"
	"github.com/elonfeng/paperpulse/pkg/source"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	store     *store.SQLStore
	engine    *engagement.Engine
	collector *collector.Collector
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup loads configuration, initializes logging and opens the store.
// onlySources restricts paper sources by name; noRescore detaches the
// engine from the collector.
func setup(onlySources []string, noRescore bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, err
	}

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine := engagement.NewEngine(db, buildNotifier(cfg, db))

	sources, err := buildSources(cfg, onlySources)
	if err != nil {
		db.Close()
		return nil, err
	}

	counts := cache.New(cfg.Cache.RedisAddr)
	var recomputer collector.Recomputer = engine
	if noRescore {
		recomputer = nil
	}
	coll := collector.New(db, sources,
		buildCitationCounter(cfg, counts),
		buildMentionCounter(cfg, counts),
		recomputer,
	)

	return &app{cfg: cfg, store: db, engine: engine, collector: coll}, nil
}

func buildSources(cfg *config.Config, only []string) ([]source.PaperSource, error) {
	client := httputil.NewClient(httputil.ClientOptions{RPS: 0.33, Burst: 1})
	filter := source.NewFilter(cfg.Filter.Keywords, cfg.Filter.ExcludeKeywords, cfg.Filter.Categories)

	var all []source.PaperSource
	if cfg.Sources.ArXiv.Enabled {
		all = append(all, source.NewArXiv(client, cfg.Sources.ArXiv.Categories, cfg.Sources.ArXiv.MaxResults, filter))
	}
	if cfg.Sources.ArXivRSS.Enabled {
		all = append(all, source.NewArXivRSS(client, cfg.Sources.ArXivRSS.Categories, filter))
	}

	if len(only) == 0 {
		return all, nil
	}

	// Filter to requested sources only.
	wanted := make(map[string]bool)
	for _, s := range only {
		wanted[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var picked []source.PaperSource
	for _, s := range all {
		if wanted[string(s.Name())] {
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("no enabled sources match: %s", strings.Join(only, ", "))
	}
	return picked, nil
}

func buildCitationCounter(cfg *config.Config, counts cache.Cache) source.Counter {
	if !cfg.Citations.Enabled {
		return nil
	}
	client := httputil.NewClient(httputil.ClientOptions{RPS: cfg.Citations.RPS, Burst: 1})

	var counter source.Counter
	switch cfg.Citations.Provider {
	case config.ProviderOpenAlex:
		counter = source.NewOpenAlex(client, cfg.Citations.Email)
	default:
		counter = source.NewSemanticScholar(client, cfg.Citations.APIKey)
	}
	return source.NewCachedCounter(counter, counts, cfg.Cache.ParseTTL())
}

func buildMentionCounter(cfg *config.Config, counts cache.Cache) source.Counter {
	if !cfg.Mentions.Enabled {
		return nil
	}
	client := httputil.NewClient(httputil.ClientOptions{RPS: cfg.Mentions.RPS, Burst: 1})
	return source.NewCachedCounter(source.NewGitHub(client, cfg.Mentions.Token), counts, cfg.Cache.ParseTTL())
}

func buildNotifier(cfg *config.Config, db store.Store) engagement.Notifier {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}
	if len(notifiers) == 0 {
		return nil
	}

	return alert.NewRankingNotifier(alert.NewManager(notifiers), db, cfg.Alerts.MinScore, cfg.Alerts.TopN)
}

func resolveDate(date string) (string, error) {
	if date == "" {
		return engagement.SnapshotDate(time.Now()), nil
	}
	return engagement.ParseDate(date)
}

func runCollect(ctx context.Context, sources []string, date string, noRescore bool) error {
	date, err := resolveDate(date)
	if err != nil {
		return err
	}

	a, err := setup(sources, noRescore)
	if err != nil {
		return err
	}
	defer a.store.Close()

	sum, err := a.collector.Run(ctx, date)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%s: %d papers, %d with citations, %d with repo mentions\n",
		sum.Date, sum.Papers, sum.Cited, sum.Mentioned)
	if sum.Report != nil {
		fmt.Fprintf(os.Stderr, "scored %d/%d (%s)\n", sum.Report.Written, sum.Report.Total, sum.Report.State)
		return sum.Report.Err()
	}
	return nil
}

func runRescore(ctx context.Context, date string, all bool) error {
	a, err := setup(nil, false)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if all {
		reports, err := a.engine.RecomputeAll(ctx)
		for _, r := range reports {
			printReport(r)
		}
		return err
	}

	date, err = resolveDate(date)
	if err != nil {
		return err
	}
	report, err := a.engine.Recompute(ctx, date)
	if err != nil {
		return err
	}
	printReport(report)
	return report.Err()
}

func printReport(r *engagement.Report) {
	fmt.Fprintf(os.Stderr, "%s: %s, %d/%d written, %d failed (%s)\n",
		r.Date, r.State, r.Written, r.Total, len(r.Failures), r.Duration.Round(time.Millisecond))
}

func runRank(ctx context.Context, date, category string, limit int, jsonOutput bool) error {
	a, err := setup(nil, false)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if date == "" {
		date, err = a.store.LatestSnapshotDate(ctx)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("no snapshots found (try collecting data first: paperpulse collect)")
			return nil
		}
		if err != nil {
			return err
		}
	} else if date, err = engagement.ParseDate(date); err != nil {
		return err
	}

	ranking, err := a.store.ListRanking(ctx, date, store.RankingOpts{Category: category, Limit: limit})
	if err != nil {
		return fmt.Errorf("list ranking: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ranking)
	}

	if len(ranking) == 0 {
		fmt.Printf("no scored papers for %s\n", date)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tCITES\tREPOS\tPAPER\tTITLE")
	for _, p := range ranking {
		fmt.Fprintf(w, "%d\t%.3f\t%d\t%d\t%s\t%s\n",
			p.Rank, p.EngagementScore, p.CitationCount, p.RepoMentionCount, p.PaperID, truncate(p.Title, 70))
	}
	return w.Flush()
}

func runServe(port int) error {
	a, err := setup(nil, false)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(a.store, a.engine, a.collector, port)
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	a, err := setup(nil, false)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(a.collector, a.engine,
		a.cfg.Schedule.ParseCollectInterval(),
		a.cfg.Schedule.ParseRescoreInterval(),
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler error")
		}
	}()

	srv := server.New(a.store, a.engine, a.collector, port)
	return srv.ListenAndServe(ctx)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
