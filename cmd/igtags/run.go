package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"igtags/internal/mirror"
	"igtags/pkg/auth"
	"igtags/pkg/config"
	"igtags/pkg/content"
	"igtags/pkg/instagram"
	"igtags/pkg/logger"
	"igtags/pkg/metrics"
	"igtags/pkg/pipeline"
	"igtags/pkg/ratelimit"
	"igtags/pkg/storage"
	"igtags/pkg/ui"
	"igtags/pkg/ui/tui"
)

var (
	// Run command flags
	outputPath    string
	clearOld      bool
	scrapePosts   bool
	scrapeImages  bool
	scrapeComment bool
	maxPosts      int
	companies     []string
	companiesFile string
	igLogin       string
	igPassword    string
	headless      bool
	storeFormat   string
	metricsAddr   string
	useTUI        bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion phases",
	Long: `Run discovery, image and comment collection for the selected companies.

Companies and their tags are read from the companies file (JSON or YAML),
a mapping of company name to a list of hashtags. Without --companies every
company in the file is processed.

The comment phase requires an Instagram login, taken from:
  - Command line flags
  - Environment variables (INSTAGRAM_LOGIN and INSTAGRAM_PASSWORD)
  - Configuration file
  - Stored credentials (use 'igtags auth login' to store)`,
	Example: `  # Discover new posts for two companies
  igtags run --companies acme,globex

  # Fill images for posts discovered earlier without discovering new ones
  igtags run --posts=false --images

  # Full run with the interactive dashboard
  igtags run --images --comments --tui

  # Start over with an empty output directory
  igtags run --clear-old --max-posts 200`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngestion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory for the content store and images")
	runCmd.Flags().BoolVar(&clearOld, "clear-old", false, "remove previous output before running")
	runCmd.Flags().BoolVar(&scrapePosts, "posts", true, "discover new posts")
	runCmd.Flags().BoolVar(&scrapeImages, "images", false, "download missing images")
	runCmd.Flags().BoolVar(&scrapeComment, "comments", false, "collect missing comments")
	runCmd.Flags().IntVar(&maxPosts, "max-posts", 0, "maximum number of new posts per run")
	runCmd.Flags().StringSliceVar(&companies, "companies", nil, "companies to process (default: all)")
	runCmd.Flags().StringVar(&companiesFile, "companies-file", "", "path to the companies file")
	runCmd.Flags().StringVar(&igLogin, "login", "", "Instagram login")
	runCmd.Flags().StringVar(&igPassword, "password", "", "Instagram password")
	runCmd.Flags().BoolVar(&headless, "headless", true, "run Chrome without a window")
	runCmd.Flags().StringVar(&storeFormat, "store", "", "content store format (csv or sqlite)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
}

// commandLineFlags returns only the flags the user set.
func commandLineFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("output") {
		flags["output-path"] = outputPath
	}
	if changed("clear-old") {
		flags["clear-old"] = clearOld
	}
	if changed("posts") {
		flags["scrape-posts"] = scrapePosts
	}
	if changed("images") {
		flags["scrape-images"] = scrapeImages
	}
	if changed("comments") {
		flags["scrape-comments"] = scrapeComment
	}
	if changed("max-posts") {
		flags["max-posts"] = maxPosts
	}
	if changed("companies") {
		flags["companies"] = companies
	}
	if changed("companies-file") {
		flags["companies-file"] = companiesFile
	}
	if changed("login") {
		flags["instagram-login"] = igLogin
	}
	if changed("password") {
		flags["instagram-password"] = igPassword
	}
	if changed("headless") {
		flags["headless"] = headless
	}
	if changed("store") {
		flags["store-format"] = storeFormat
	}
	if changed("metrics-addr") {
		flags["metrics-addr"] = metricsAddr
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

func runIngestion(cmd *cobra.Command) error {
	if code := ingest(cmd); code != 0 {
		os.Exit(code)
	}
	return nil
}

// ingest performs one run and returns the process exit code. Deferred
// cleanup such as closing the browser has run by the time it returns.
func ingest(cmd *cobra.Command) int {
	cfg, err := config.Load(configFile, commandLineFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return 1
	}

	runID := uuid.New().String()
	if err := setupLogging(cfg); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		return 1
	}
	log := logger.WithField("run_id", runID)
	logger.SetGlobal(log)
	log.WithField("version", version).Info("igtags starting")

	if cfg.Output.ClearOld {
		removed, err := storage.ClearOutput(cfg.Output.Directory, log)
		if err != nil {
			ui.PrintError("Failed to clear output directory", err.Error())
			return 1
		}
		ui.PrintInfo("Cleared previous output", fmt.Sprintf("%d files", removed))
	}

	groups, unknown, err := config.LoadTagGroups(cfg.Companies.File, cfg.Companies.Selection)
	if err != nil {
		ui.PrintError("Failed to load companies", err.Error())
		return 1
	}
	for _, name := range unknown {
		log.WithField("company", name).Warn("Company not found in companies file")
		ui.PrintWarning("Unknown company", name)
	}
	if cfg.Scrape.Posts && len(groups) == 0 {
		ui.PrintError("No companies to process", cfg.Companies.File)
		return 1
	}

	if cfg.Scrape.Comments {
		applyStoredCredentials(cfg, log)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		log.WithError(err).Error("Missing credentials")
		ui.PrintError("Missing Instagram credentials", err.Error())
		fmt.Println("\nTo store credentials securely, run:")
		fmt.Println("  igtags auth login")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mtr := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	snap, err := content.OpenSnapshot(cfg.Store.Format, cfg.Output.Directory)
	if err != nil {
		ui.PrintError("Failed to open content store", err.Error())
		return 1
	}
	store, err := content.Open(snap, log, mtr)
	if err != nil {
		snap.Close()
		ui.PrintError("Failed to open content store", err.Error())
		return 1
	}

	remote, err := storage.NewMirror(ctx, cfg.Mirror)
	if err != nil {
		store.Close()
		ui.PrintError("Failed to configure mirror", err.Error())
		return 1
	}
	if c, ok := remote.(io.Closer); ok {
		defer c.Close()
	}

	var pool *mirror.Pool
	var submitter storage.Submitter
	if cfg.Mirror.Provider != config.MirrorNone {
		pool = mirror.NewPool(ctx, cfg.Mirror.Workers, remote, ratelimit.NewBucket(10, 100*time.Millisecond), log, mtr)
		pool.Start()
		submitter = pool
	}

	var assets pipeline.ImageSink
	if cfg.Scrape.Images {
		manager, err := storage.NewManager(cfg.Output.Directory, storage.ImageOptions{
			Normalize: cfg.Images.Normalize,
			MaxWidth:  cfg.Images.MaxWidth,
			Quality:   cfg.Images.Quality,
		}, submitter, log)
		if err != nil {
			store.Close()
			ui.PrintError("Failed to prepare image directory", err.Error())
			return 1
		}
		assets = manager
	}

	limiter := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
	client := instagram.NewClient(cfg.Instagram.DownloadTimeout, cfg.Instagram.UserAgent, limiter, log)
	browser, err := instagram.NewBrowser(cfg.Instagram, client, limiter, log)
	if err != nil {
		store.Close()
		ui.PrintError("Failed to start browser", err.Error())
		return 1
	}
	defer browser.Close()

	ui.PrintInfo("Run", runID)
	ui.PrintInfo("Output", cfg.Output.Directory)
	ui.PrintInfo("Companies", fmt.Sprintf("%d", len(groups)))

	p := pipeline.New(store, browser, assets, pipeline.OptionsFromConfig(cfg), log, mtr)

	var res pipeline.Result
	var runErr error
	if useTUI {
		res, runErr = runWithTUI(ctx, p, groups, log)
	} else {
		p.WithObserver(ui.NewProgressPrinter(verbose))
		res, runErr = p.Run(ctx, groups)
	}

	if err := store.Close(); err != nil {
		log.WithError(err).Warn("Failed to close content store")
	}

	if pool != nil {
		mirrorSnapshot(pool, cfg.Output.Directory, store.SnapshotName(), log)
		stats := pool.Stop()
		ui.PrintInfo("Mirrored", fmt.Sprintf("%d uploaded, %d failed, %d dropped", stats.Uploaded, stats.Failed, stats.Dropped))
	}

	printResult(res)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn("Run interrupted")
			ui.PrintWarning("Run interrupted, progress so far has been saved")
			return 130
		}
		log.WithError(runErr).Error("Run failed")
		ui.PrintError("RUN FAILED", runErr.Error())
		return 1
	}

	log.Info("Run completed successfully")
	ui.PrintSuccess("[RUN COMPLETED SUCCESSFULLY]")
	return 0
}

// setupLogging initializes the global logger. The dashboard owns the
// terminal, so with --tui logs go to a file only.
func setupLogging(cfg *config.Config) error {
	if !useTUI {
		return logger.Initialize(&cfg.Logging)
	}

	path := cfg.Logging.File
	if path == "" {
		path = filepath.Join(cfg.Output.Directory, "igtags.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	zlog := zerolog.New(f).Level(level).With().Timestamp().Str("app", "igtags").Logger()
	logger.SetGlobal(logger.NewFromZerolog(zlog))
	return nil
}

func applyStoredCredentials(cfg *config.Config, log logger.Logger) {
	dir, err := auth.DefaultConfigDir()
	if err != nil {
		log.WithError(err).Warn("No config directory for stored credentials")
		return
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize credential manager")
		return
	}
	if manager.Apply(&cfg.Instagram) {
		log.WithField("account", cfg.Instagram.Login).Info("Using stored credentials")
		ui.PrintInfo("Using account", cfg.Instagram.Login)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("Serving metrics")
	return srv
}

func runWithTUI(ctx context.Context, p *pipeline.Pipeline, groups []config.TagGroup, log logger.Logger) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	phases := []string{pipeline.PhaseDiscover, pipeline.PhaseImages, pipeline.PhaseComments}
	terminal := tui.NewTUI(phases, cancel)
	p.WithObserver(terminal)

	// Run the pipeline in a goroutine
	type outcome struct {
		res pipeline.Result
		err error
	}
	runDone := make(chan outcome, 1)
	go func() {
		terminal.LogInfo("Collecting %d companies", len(groups))
		res, err := p.Run(ctx, groups)
		runDone <- outcome{res, err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	select {
	case out := <-runDone:
		switch {
		case errors.Is(out.err, context.Canceled):
			terminal.LogError("Run interrupted, collected posts were flushed")
		case out.err != nil:
			terminal.LogError("Run failed: %v", out.err)
		default:
			terminal.LogInfo("Discovered %d posts, saved %d images and %d comments",
				out.res.Discovered, out.res.ImagesSaved, out.res.CommentsSaved)
		}
		terminal.Finish(out.err)
		if err := <-tuiDone; err != nil {
			log.WithError(err).Error("TUI failed")
		}
		return out.res, out.err
	case err := <-tuiDone:
		if err != nil {
			log.WithError(err).Error("TUI failed")
		}
		cancel()
		out := <-runDone
		return out.res, out.err
	}
}

// mirrorSnapshot uploads the closed content store file.
func mirrorSnapshot(pool *mirror.Pool, dir, name string, log logger.Logger) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		log.WithError(err).WithField("file", name).Warn("Failed to read snapshot for mirror")
		return
	}
	pool.Submit(name, data)
}

func printResult(res pipeline.Result) {
	ui.PrintHighlight("\nSummary")
	ui.PrintInfo("Posts discovered", fmt.Sprintf("%d", res.Discovered))
	ui.PrintInfo("Images saved", fmt.Sprintf("%d (%d skipped)", res.ImagesSaved, res.ImagesSkipped))
	ui.PrintInfo("Comments saved", fmt.Sprintf("%d on %d posts (%d skipped)", res.CommentsSaved, res.PostsCommented, res.PostsSkipped))
	if res.TagsSkipped > 0 {
		ui.PrintWarning("Tags skipped", res.TagsSkipped)
	}
}
