// Package scan walks the configured roots and stages a change record
// for every included path, seeding the index through the same pipeline
// the watcher feeds. Promotion pacing is left to the drain tick; the
// staging queue absorbs the burst.
package scan

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"fsindex/internal/core/records"
	"fsindex/internal/core/walk"
	"fsindex/internal/core/watch"
	"fsindex/internal/model"
)

type Stager interface {
	StageIncoming(recs ...model.ChangeRecord) error
}

type Options struct {
	Roots   []string
	Workers int

	Suppressor watch.Suppressor

	IncludeGlobs []string
	ExcludeGlobs []string
	ScanAll      bool

	Log *slog.Logger
}

// Run walks every root, one goroutine per root up to Workers, and
// returns the number of records staged. The first error aborts the
// remaining walks.
func Run(ctx context.Context, stager Stager, opts Options) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	wopts := walk.Options{
		IncludeGlobs: opts.IncludeGlobs,
		ExcludeGlobs: opts.ExcludeGlobs,
		ScanAll:      opts.ScanAll,
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, root := range opts.Roots {
		root := root
		g.Go(func() error {
			n, err := scanRoot(ctx, stager, root, wopts, opts.Suppressor)
			total.Add(int64(n))
			if err != nil {
				return err
			}
			log.Info("scanned root", "root", root, "records", n)
			return nil
		})
	}

	err := g.Wait()
	return int(total.Load()), err
}

func scanRoot(ctx context.Context, stager Stager, root string, wopts walk.Options, sup watch.Suppressor) (int, error) {
	// Same verdict inheritance as the event loop: the walk visits a
	// directory's entries consecutively, so one mount lookup covers
	// the run.
	var lastDir string
	var lastSup bool
	staged := 0

	err := walk.Walk(root, wopts, func(abs string, isDir bool) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dir := filepath.Dir(abs)
		prior := dir == lastDir && lastSup
		suppressed := prior || sup.Suppressed(abs, prior)
		lastDir, lastSup = dir, suppressed
		if suppressed {
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		rec, ok := records.Generate(abs)
		if !ok {
			return nil
		}
		if err := stager.StageIncoming(rec); err != nil {
			return err
		}
		staged++
		return nil
	})
	return staged, err
}
