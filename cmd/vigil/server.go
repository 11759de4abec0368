package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hmtran/vigil/internal/api"
	"github.com/hmtran/vigil/internal/config"
	"github.com/hmtran/vigil/internal/detect"
	"github.com/hmtran/vigil/internal/jobs"
	"github.com/hmtran/vigil/internal/pipeline"
	"github.com/hmtran/vigil/internal/scrape"
	"github.com/hmtran/vigil/internal/storage"
	"github.com/hmtran/vigil/internal/transcribe"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vigil server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vigil server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vigil system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vigil.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "vigil version %s\n", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	token := cfg.Server.Token
	if token == "" {
		token = uuid.New().String()
		slog.Info("no API token configured, generated one for this run", "token", token)
	}

	// Refuse to start over an already running instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vigil is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vigil is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lexicon, err := detect.LoadLexicon(cfg.Detect.LexiconPath)
	if err != nil {
		return fmt.Errorf("loading lexicon: %w", err)
	}
	classifier, err := detect.New(lexicon)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}
	slog.Info("classifier ready", "categories", len(lexicon))

	// The long-lived handle serves the API and the worker's job records.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	queue := jobs.NewQueue(store, cfg.Worker.QueueSize)

	// Each job gets its own store handle and browser so a crashed page or
	// wedged connection dies with the job.
	newRunner := func(ctx context.Context) (jobs.Runner, error) {
		jobStore, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening job storage: %w", err)
		}
		scraper, err := scrape.NewYouTube(cfg.Scraper.Headless, cfg.Scraper.NavTimeoutDuration())
		if err != nil {
			jobStore.Close()
			return nil, fmt.Errorf("starting scraper: %w", err)
		}
		var transcriber transcribe.Transcriber
		if cfg.Transcriber.BaseURL != "" {
			transcriber = transcribe.New(cfg.Transcriber.BaseURL)
		}
		return pipeline.New(jobStore, scraper, classifier, transcriber), nil
	}

	worker := jobs.NewWorker(store, queue, newRunner, cfg.Worker.PollDuration(), cfg.Worker.JobTimeoutDuration())

	handler := api.NewAppHandler(api.AppDeps{
		Store: store,
		Queue: queue,
		Token: token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("vigil listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("vigil is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vigil (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vigil (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Transcriber.BaseURL == "" {
		printStatus("Transcriber", "disabled")
	} else if transcribe.New(cfg.Transcriber.BaseURL).IsRunning(context.Background()) {
		printStatus("Transcriber", "running at %s", cfg.Transcriber.BaseURL)
	} else {
		printStatus("Transcriber", "not responding at %s", cfg.Transcriber.BaseURL)
	}

	if cfg.Detect.LexiconPath != "" {
		printStatus("Lexicon", "built-in + %s", cfg.Detect.LexiconPath)
	} else {
		printStatus("Lexicon", "built-in")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
