package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/async"
	"github.com/joseph-ayodele/claims-processor/internal/common"
	"github.com/joseph-ayodele/claims-processor/internal/export"
	"github.com/joseph-ayodele/claims-processor/internal/ingest"
	repo "github.com/joseph-ayodele/claims-processor/internal/repository"
	svc "github.com/joseph-ayodele/claims-processor/internal/server"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// tally counts finished jobs and lets main wait for a known number of them.
type tally struct {
	mu       sync.Mutex
	cond     *sync.Cond
	done     int
	approved int
	rejected int
	failed   int
}

func newTally() *tally {
	t := &tally{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *tally) record(out async.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	switch {
	case out.Status == constants.JobStatusFailed:
		t.failed++
	case out.Result.Decision.Status == constants.ClaimApproved:
		t.approved++
	default:
		t.rejected++
	}
	t.cond.Broadcast()
}

func (t *tally) wait(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.done < n {
		t.cond.Wait()
	}
}

func main() {
	var (
		inmem    = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir      = flag.String("dir", "", "directory of claim folders to process (required)")
		out      = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr  = flag.String("from", "", "export from date YYYY-MM-DD")
		toStr    = flag.String("to", "", "export to date YYYY-MM-DD")
		watch    = flag.Bool("watch", false, "keep running and process claim folders as they appear")
		debounce = flag.Duration("debounce", 2*time.Second, "quiet period before a watched folder is processed")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "claims.xlsx")
	}

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := common.ParseYMD(*fromStr)
		if err != nil {
			printError("Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := common.ParseYMD(*toStr)
		if err != nil {
			printError("Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		to = &parsed
	}

	cfg, err := svc.LoadConfig()
	if err != nil {
		printError("Error: invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if *inmem {
		cfg.Database.DSN = ""
	}
	logger := svc.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	claimsRepo := repo.NewClaimRepository(db, logger)
	processor, _ := svc.NewPipeline(cfg, logger)

	counts := newTally()
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Claims.Workers),
		async.WithQueueSize(cfg.Claims.QueueSize),
		async.WithProcessTimeout(cfg.Claims.Timeout),
		async.WithSink(claimsRepo),
		async.WithCallback(counts.record),
	)

	claimDirs, stats, err := ingest.CollectClaims(*dir, true)
	if err != nil {
		logger.Error("failed to scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	logger.Info("scan complete",
		"claims", stats.Claims,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"failed", stats.Failed)

	submitted := 0
	submit := func(c ingest.ClaimDir) {
		uploads, err := ingest.Load(c)
		if err != nil {
			logger.Error("failed to read claim", "claim", c.Name, "error", err)
			return
		}
		if err := queue.Enqueue(ctx, async.ClaimJob{Name: c.Name, Uploads: uploads}); err != nil {
			logger.Error("failed to queue claim", "claim", c.Name, "error", err)
			return
		}
		submitted++
	}
	for _, c := range claimDirs {
		submit(c)
	}

	if *watch {
		events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{Root: *dir, SkipHidden: true, Debounce: *debounce}, logger)
		if err != nil {
			logger.Error("failed to watch directory", "dir", *dir, "error", err)
			os.Exit(1)
		}
		logger.Info("watching for new claims", "dir", *dir)
	loop:
		for {
			select {
			case path, ok := <-events:
				if !ok {
					break loop
				}
				found, _, err := ingest.CollectClaims(path, true)
				if err != nil {
					logger.Error("failed to scan claim folder", "path", path, "error", err)
					continue
				}
				for _, c := range found {
					submit(c)
				}
			case err, ok := <-errs:
				if ok {
					logger.Warn("watch error", "error", err)
				}
			case <-ctx.Done():
				break loop
			}
		}
	}

	counts.wait(submitted)
	queue.Shutdown(context.Background())

	exportCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := export.NewService(claimsRepo, logger).ExportClaimsXLSX(exportCtx, from, to)
	if err != nil {
		logger.Error("failed to export claims", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		slog.Int("claims", submitted),
		slog.Int("approved", counts.approved),
		slog.Int("rejected", counts.rejected),
		slog.Int("failed", counts.failed),
		slog.String("output_file", *out))

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Claims processed: %d\n", submitted)
	fmt.Printf("- Approved: %d\n", counts.approved)
	fmt.Printf("- Rejected: %d\n", counts.rejected)
	fmt.Printf("- Failures: %d\n", counts.failed)
	fmt.Printf("- Output: %s\n", *out)
}
