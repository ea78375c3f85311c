package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fsindex/internal/config"
	"fsindex/internal/core/batch"
	"fsindex/internal/core/mounts"
	"fsindex/internal/core/records"
	"fsindex/internal/core/scan"
	"fsindex/internal/core/watch"
	"fsindex/internal/fsidxd"
	"fsindex/internal/index/backend"
	"fsindex/internal/index/engine"
	"fsindex/internal/index/store"
	"fsindex/internal/version"
)

type rootList []string

func (r *rootList) String() string { return strings.Join(*r, ",") }

func (r *rootList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("root must not be empty")
	}
	*r = append(*r, v)
	return nil
}

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "config file (default "+config.DefaultPath()+")")
		socketFlag = flag.String("socket", "", "unix socket path (overrides config)")
		logLevel   = flag.String("log-level", "", "debug | info | warn | error (overrides config)")
		showVer    = flag.Bool("version", false, "print version and exit")
		roots      rootList
	)
	flag.Var(&roots, "root", "watch root, repeatable (overrides config)")
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *socketFlag != "" {
		cfg.Daemon.Socket = *socketFlag
	}
	if *logLevel != "" {
		cfg.Daemon.LogLevel = *logLevel
	}
	if len(roots) > 0 {
		cfg.Watch.Roots = roots
	}
	if len(cfg.Watch.Roots) == 0 {
		return fmt.Errorf("no watch roots configured (set watch.roots in %s or pass -root)", config.DefaultPath())
	}

	log := newLogger(cfg.Daemon.LogLevel)
	slog.SetDefault(log)

	socket := cfg.SocketPath()
	// Probe before opening the store; with the bleve backend a second
	// open fails on the index lock before the socket check could run.
	if socketAnswers(socket) {
		log.Info("another daemon is already running", "socket", socket)
		return nil
	}

	dataDir := cfg.IndexDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	name := backend.NormalizeName(cfg.Index.Backend)
	st, err := backend.Open(name, backend.DefaultPath(dataDir, name))
	if err != nil {
		return fmt.Errorf("open %s store: %w", name, err)
	}
	eng, err := engine.New(st, dataDir, engine.Config{
		DeletionBatchSize: cfg.Batch.DeletionSize,
		DeletionMaxAge:    cfg.Batch.DeletionMaxAge(),
	})
	if err != nil {
		_ = st.Close()
		return err
	}
	// The index must not index its own files.
	eng.SetChangeFilter(func(path string) bool {
		return path != dataDir && !strings.HasPrefix(path, dataDir+string(filepath.Separator))
	})

	sched := batch.New(eng, batch.Config{
		BatchSize:     cfg.Batch.Size,
		BatchInterval: cfg.Batch.Interval(),
		DrainCap:      cfg.Batch.DrainCap,
		WaitTimeout:   cfg.Batch.WaitTimeout(),
	}, log)

	mm := mounts.NewManager()
	if err := mm.Refresh(); err != nil {
		log.Warn("mount refresh failed", "error", err)
	}
	sup := watch.Suppressor{
		Matcher:      mm,
		ShadowSuffix: cfg.Watch.ShadowSuffix,
		FSType:       cfg.Watch.SuppressedFSType,
	}

	watcher, err := watch.NewService(sched, watch.Options{
		Roots:           cfg.Watch.Roots,
		IndexDir:        dataDir,
		Suppressor:      sup,
		Mounts:          mm,
		DrainInterval:   cfg.Batch.DrainInterval(),
		RefreshInterval: cfg.Mounts.RefreshInterval(),
		IncludeGlobs:    cfg.Scan.IncludeGlobs,
		ExcludeGlobs:    cfg.Scan.ExcludeGlobs,
		ScanAll:         cfg.Scan.ScanAll,
		Log:             log,
	})
	if err != nil {
		sched.Shutdown()
		_ = eng.Close()
		return err
	}
	logRootMounts(mm, watcher.Roots(), log)

	srv := fsidxd.NewServer(fsidxd.NewHandlers(sched, eng, mm, watcher.Roots()), fsidxd.Options{
		SocketPath: socket,
		Log:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() { watchErr <- watcher.Run(ctx) }()

	if cfg.Scan.OnStart {
		go startupScan(ctx, sched, eng, sup, cfg, watcher.Roots(), log)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Run() }()

	log.Info("daemon started",
		"version", version.Version,
		"socket", socket,
		"backend", eng.Backend(),
		"roots", watcher.Roots(),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	case err := <-serverErr:
		serverErr = nil
		if errors.Is(err, fsidxd.ErrAlreadyRunning) {
			log.Info("another daemon is already running", "socket", socket)
		} else if err != nil {
			runErr = fmt.Errorf("server: %w", err)
		}
	case err := <-watchErr:
		watchErr = nil
		if err != nil {
			runErr = fmt.Errorf("watcher: %w", err)
		}
	}

	cancel()
	_ = srv.Close()
	awaitDone(serverErr, 3*time.Second)
	_ = watcher.Close()
	awaitDone(watchErr, 3*time.Second)
	sched.Shutdown()
	if err := eng.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close store: %w", err)
	}
	log.Info("daemon stopped")
	return runErr
}

// startupScan seeds the index through the same staging pipeline the
// watcher feeds, so batching and suppression apply to scanned paths
// exactly as they do to live events.
func startupScan(ctx context.Context, sched *batch.Scheduler, eng *engine.Engine, sup watch.Suppressor, cfg *config.Config, roots []string, log *slog.Logger) {
	if applier, ok := eng.Store().(store.BuildPragmaApplier); ok {
		if err := applier.ApplyBuildPragmas(); err != nil {
			log.Warn("build pragmas not applied", "error", err)
		}
	}

	start := time.Now()
	n, err := scan.Run(ctx, sched, scan.Options{
		Roots:        roots,
		Workers:      cfg.Scan.Workers,
		Suppressor:   sup,
		IncludeGlobs: cfg.Scan.IncludeGlobs,
		ExcludeGlobs: cfg.Scan.ExcludeGlobs,
		ScanAll:      cfg.Scan.ScanAll,
		Log:          log,
	})
	if err != nil {
		log.Warn("startup scan aborted", "error", err, "staged", n)
		return
	}
	if err := eng.SetMeta(fsidxd.MetaLastScan, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn("record scan time failed", "error", err)
	}
	log.Info("startup scan complete", "records", n, "elapsed", time.Since(start).Round(time.Millisecond))
}

// logRootMounts reports where each watch root lives. A root whose
// device is missing from the mount table will produce events the
// suppression filter cannot classify.
func logRootMounts(mm *mounts.Manager, roots []string, log *slog.Logger) {
	for _, root := range roots {
		rec, ok := records.Generate(root)
		if !ok {
			log.Warn("watch root is not accessible", "root", root)
			continue
		}
		if !mm.ContainsDevice(rec.Device) {
			log.Warn("watch root device missing from mount table", "root", root, "device", rec.Device)
			continue
		}
		if mp, ok := mm.MountPointFor(rec.Device); ok {
			log.Debug("watch root resolved", "root", root, "mount", mp)
		}
	}
}

func awaitDone(c <-chan error, timeout time.Duration) {
	if c == nil {
		return
	}
	select {
	case <-c:
	case <-time.After(timeout):
	}
}

// socketAnswers reports whether a live daemon already owns the socket.
func socketAnswers(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	c, err := fsidxd.Dial(path)
	if err != nil {
		return false
	}
	defer c.Close()
	return c.Ping() == nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
