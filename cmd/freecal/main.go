package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"freecal/internal/config"
	"freecal/internal/friends"
	"freecal/internal/ics"
	appLog "freecal/internal/log"
	"freecal/internal/metrics"
	"freecal/internal/query"
	"freecal/internal/schedule"
	"freecal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	week       string
	friends    string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to apply environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("freecal starting", "version", version)

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err)
		os.Exit(1)
	}

	selection := friends.NewSelection()
	for _, id := range splitList(flags.friends) {
		if _, ok := conf.Friend(id); !ok {
			appLog.Error("unknown friend", fmt.Errorf("no friend %q in config", id))
			os.Exit(2)
		}
		selection.Select(id)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"clock", conf.ClockCron,
		"min_free_minutes", conf.MinFreeMinutes,
		"free_without_friend", *conf.FreeWithoutFriend,
		"calendars", len(conf.Calendars),
		"friends", len(conf.Friends),
		"selected", strings.Join(selection.IDs(), ","),
		"once", flags.once,
	)

	m := metrics.New()
	provider := ics.NewProviderFromConfig(conf, ics.NewFetcher(conf.CacheDir), loc).WithObserver(m)

	session, err := newSession(flags.week, time.Now(), selection, query.Options{
		Location:          loc,
		MinFree:           time.Duration(conf.MinFreeMinutes) * time.Minute,
		FreeWithoutFriend: *conf.FreeWithoutFriend,
		MemoSize:          conf.MemoSize,
		Recorder:          m,
	})
	if err != nil {
		appLog.Error("failed to create session", err, "week", flags.week)
		os.Exit(2)
	}
	loader := query.NewLoader(provider, provider)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		code := runOnce(ctx, session, loader)
		cancel()
		os.Exit(code)
	}

	if _, err := loader.Refresh(ctx, session); err != nil {
		appLog.Warn("initial load incomplete; will retry on schedule", "cause", err)
	}

	sched := schedule.New(loc)
	if err := sched.AddRefresh(conf.RefreshCron, func(ctx context.Context) error {
		_, err := loader.Refresh(ctx, session)
		return err
	}); err != nil {
		appLog.Error("invalid refresh schedule", err)
		os.Exit(1)
	}
	if err := sched.AddClock(conf.ClockCron, session.SetNow); err != nil {
		appLog.Error("invalid clock schedule", err)
		os.Exit(1)
	}
	sched.Start()

	srv := web.NewServer(conf, session, loader, m)
	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("HTTP server failed", err)
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		appLog.Warn("scheduler did not stop cleanly", "cause", err)
	}
	appLog.Info("freecal exiting")
}

// newSession starts a session on the week containing the -week date, or
// on the current week when week is empty. The "now" marker is always now.
func newSession(week string, now time.Time, selection *friends.Selection, opts query.Options) (*query.Session, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	start := now
	if week != "" {
		day, err := time.ParseInLocation("2006-01-02", week, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid -week %q: %w", week, err)
		}
		start = day
	}

	session, err := query.NewSession(start, selection, opts)
	if err != nil {
		return nil, err
	}
	session.SetNow(now)
	return session, nil
}

// runOnce loads the selected week, prints it as JSON and returns the exit
// code.
func runOnce(ctx context.Context, session *query.Session, loader *query.Loader) int {
	_, loadErr := loader.Refresh(ctx, session)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(session.Week()); err != nil {
		appLog.Error("failed to encode week", err)
		return 1
	}
	if loadErr != nil {
		appLog.Error("load incomplete", loadErr)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/freecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional .env file with FREECAL_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load one week, print it as JSON and exit")
	flag.StringVar(&cfg.week, "week", "", "Start on the week containing this date (YYYY-MM-DD)")
	flag.StringVar(&cfg.friends, "friend", "", "Comma-separated friend IDs to select at startup")

	flag.Parse()

	return cfg
}
