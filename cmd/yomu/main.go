// Package main is the yomu CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/catalog"
	"github.com/hyperjump/yomu/internal/cli"
	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/encoder"
	"github.com/hyperjump/yomu/internal/library"
	"github.com/hyperjump/yomu/internal/manager"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/reader"
	"github.com/hyperjump/yomu/internal/server"
	"github.com/hyperjump/yomu/internal/text"
	"github.com/hyperjump/yomu/internal/worker"
	"github.com/hyperjump/yomu/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// commandTimeout bounds one-shot subcommands.
const commandTimeout = 2 * time.Minute

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config is not an error: built-in defaults apply.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "info":
		err = runInfo(args)
	case "text":
		err = runText(args)
	case "search":
		err = runSearch(args)
	case "render":
		err = runRender(args)
	case "preview":
		err = runPreview(args)
	case "annotations":
		err = runAnnotations(args)
	case "library":
		err = runLibrary(args)
	case "version", "--version", "-v":
		fmt.Printf("yomu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

// reorderArgs moves any flags (and their values) that appear after the positional arguments
// to the front of the slice so that flag.Parse() sees them. Go's flag package stops at the
// first non-flag argument, so "yomu search a.pdf query -limit 5" would otherwise leave -limit
// unparsed.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional args with spaces so multi-word queries work the same with or
// without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseTile parses "x,y,w,h".
func parseTile(s string) (models.TileRect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.TileRect{}, fmt.Errorf("tile must be x,y,w,h, got %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.TileRect{}, fmt.Errorf("tile component %q is not a number", p)
		}
		v[i] = n
	}
	return models.TileRect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// outputPath picks where an image is written when --out is not given.
func outputPath(docPath, suffix string, format encoder.Format) string {
	base := filepath.Base(docPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + suffix + "." + string(format)
}

// commonFlags are shared by every one-shot subcommand.
type commonFlags struct {
	configPath *string
	debug      *bool
	output     *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", config.DefaultPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

// Components holds what a subcommand needs.
type Components struct {
	Config  *config.Config
	Logger  *zap.Logger
	Service *reader.Service
	Encoder *encoder.Encoder
}

// Close shuts the service down and flushes the logger.
func (c *Components) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Service.Close(ctx); err != nil {
		c.Logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = c.Logger.Sync()
}

// initializeComponents builds the service from cfg. persistent opens the library database and
// the text catalog; one-shot commands leave them closed so they never contend with a running
// server for the database locks.
func initializeComponents(cfg *config.Config, debug, persistent bool) (*Components, error) {
	logger, err := utils.NewLoggerWithFile(cfg.Debug || debug, utils.FileSink{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	format, err := encoder.ParseFormat(cfg.Render.Format)
	if err != nil {
		return nil, err
	}
	enc := encoder.New(format, cfg.Render.JPEGQuality)
	cacheEntries := cfg.Render.CacheEntries
	if cacheEntries < 0 {
		cacheEntries = 0
	}
	pool := worker.NewPool(backend.NewPDFBackend(),
		worker.WithSize(cfg.Pool.Workers),
		worker.WithEncoder(enc),
		worker.WithLayout(text.LayoutOptions{LineEpsilon: cfg.Text.LineEpsilon, MergeTolerance: cfg.Text.MergeTolerance}),
		worker.WithPreviewWidth(cfg.Render.PreviewWidth),
		worker.WithRenderCache(cacheEntries),
		worker.WithMaxRaster(cfg.Render.MaxWidth, cfg.Render.MaxPixels),
		worker.WithLogger(logger),
	)
	m := manager.New(pool, manager.WithLogger(logger))

	opts := []reader.Option{reader.WithLogger(logger)}
	if persistent {
		store, err := library.NewSQLiteStore(cfg.Library.DatabasePath)
		if err != nil {
			_ = m.Close(context.Background())
			return nil, fmt.Errorf("failed to initialize library: %w", err)
		}
		cat, err := catalog.NewBleveCatalog(cfg.Library.IndexPath)
		if err != nil {
			_ = store.Close()
			_ = m.Close(context.Background())
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		opts = append(opts,
			reader.WithLibrary(store),
			reader.WithCatalog(cat),
			reader.WithPreviewDir(cfg.Library.PreviewDir),
			reader.WithIndexOnOpen(cfg.Library.IndexOnOpenOrDefault()),
			reader.WithUsagePaths(cfg.Library.DatabasePath, cfg.Library.IndexPath),
		)
	}
	return &Components{
		Config:  cfg,
		Logger:  logger,
		Service: reader.New(m, opts...),
		Encoder: enc,
	}, nil
}

// withDocument loads config, opens path and calls fn with a bounded context.
func withDocument(flags commonFlags, path string, fn func(ctx context.Context, c *Components, id models.DocumentID, format cli.OutputFormat) error) error {
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(*flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c, err := initializeComponents(cfg, *flags.debug, false)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	id, err := c.Service.Open(ctx, path)
	if err != nil {
		return err
	}
	return fn(ctx, c, id, format)
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (worker activity, file changes, etc.)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c, err := initializeComponents(cfg, *debug, true)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.Logger
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		if err := c.Service.Watch(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(c.Service, &cfg.Server, c.Encoder.Format().ContentType(), logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	flags := addCommonFlags(fs)
	outline := fs.Bool("outline", false, "also print the document outline")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu info [flags] <file>")
	}
	path := fs.Arg(0)
	return withDocument(flags, path, func(ctx context.Context, c *Components, id models.DocumentID, format cli.OutputFormat) error {
		info, err := c.Service.Info(ctx, id)
		if err != nil {
			return err
		}
		if err := cli.WriteInfo(os.Stdout, path, info, format); err != nil {
			return err
		}
		if !*outline {
			return nil
		}
		bookmarks, err := c.Service.Bookmarks(ctx, id)
		if err != nil {
			return err
		}
		return cli.WriteBookmarks(os.Stdout, bookmarks, format)
	})
}

func runText(args []string) error {
	fs := flag.NewFlagSet("text", flag.ExitOnError)
	flags := addCommonFlags(fs)
	page := fs.Int("page", 0, "zero-based page index")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu text [flags] <file>")
	}
	return withDocument(flags, fs.Arg(0), func(ctx context.Context, c *Components, id models.DocumentID, format cli.OutputFormat) error {
		pt, err := c.Service.TextByPage(ctx, id, *page)
		if err != nil {
			return err
		}
		return cli.WritePageText(os.Stdout, pt, format)
	})
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	flags := addCommonFlags(fs)
	libraryMode := fs.Bool("library", false, "search the text of every library document instead of one file")
	limit := fs.Int("limit", 10, "number of library results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for library search")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  yomu search [flags] <file> <query>\n  yomu search --library [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(args))

	if *libraryMode {
		query := buildQuery(fs.Args())
		if query == "" {
			fs.Usage()
			return errors.New("query is required")
		}
		return searchLibrary(flags, query, *limit, *fuzzy)
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return errors.New("file and query are required")
	}
	query := buildQuery(fs.Args()[1:])
	return withDocument(flags, fs.Arg(0), func(ctx context.Context, c *Components, id models.DocumentID, format cli.OutputFormat) error {
		hits, err := c.Service.Search(ctx, id, query)
		if err != nil {
			return err
		}
		return cli.WriteSearchHits(os.Stdout, query, hits, format)
	})
}

func searchLibrary(flags commonFlags, query string, limit int, fuzzy bool) error {
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(*flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c, err := initializeComponents(cfg, *flags.debug, true)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	hits, err := c.Service.SearchLibrary(ctx, query, limit, &catalog.SearchOptions{FuzzyEnabled: fuzzy})
	if err != nil {
		return err
	}
	// Retry with typo tolerance when an exact search finds nothing.
	if len(hits) == 0 && !fuzzy {
		if fuzzyHits, fuzzyErr := c.Service.SearchLibrary(ctx, query, limit, &catalog.SearchOptions{FuzzyEnabled: true}); fuzzyErr == nil {
			hits = fuzzyHits
		}
	}
	return cli.WriteLibraryHits(os.Stdout, query, hits, format)
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	flags := addCommonFlags(fs)
	page := fs.Int("page", 0, "zero-based page index")
	width := fs.Int("width", 1200, "target width in pixels")
	tile := fs.String("tile", "", "render only the tile x,y,w,h (scaled pixels)")
	out := fs.String("out", "", "output image file (default <name>-p<page>.<format>)")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu render [flags] <file>")
	}
	path := fs.Arg(0)
	return withDocument(flags, path, func(ctx context.Context, c *Components, id models.DocumentID, _ cli.OutputFormat) error {
		var rendered models.RenderedPage
		if *tile != "" {
			rect, err := parseTile(*tile)
			if err != nil {
				return err
			}
			t, err := c.Service.RenderTile(ctx, id, *page, *width, rect)
			if err != nil {
				return err
			}
			rendered = t.RenderedPage
		} else {
			var err error
			if rendered, err = c.Service.Render(ctx, id, *page, *width); err != nil {
				return err
			}
		}
		dst := *out
		if dst == "" {
			dst = outputPath(path, fmt.Sprintf("-p%d", *page), c.Encoder.Format())
		}
		if err := os.WriteFile(dst, rendered.Data, 0644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Printf("wrote %s (%dx%d)\n", dst, rendered.Width, rendered.Height)
		return nil
	})
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	flags := addCommonFlags(fs)
	width := fs.Int("width", 0, "preview width in pixels (default from config)")
	out := fs.String("out", "", "output image file (default <name>-preview.<format>)")
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu preview [flags] <file>")
	}
	path := fs.Arg(0)
	return withDocument(flags, path, func(ctx context.Context, c *Components, id models.DocumentID, _ cli.OutputFormat) error {
		dst := *out
		if dst == "" {
			dst = outputPath(path, "-preview", c.Encoder.Format())
		}
		rendered, err := c.Service.Manager.Preview(ctx, id, *width, dst)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s (%dx%d)\n", dst, rendered.Width, rendered.Height)
		return nil
	})
}

func runAnnotations(args []string) error {
	fs := flag.NewFlagSet("annotations", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(reorderArgs(args))
	if fs.NArg() != 1 {
		return errors.New("usage: yomu annotations [flags] <file>")
	}
	return withDocument(flags, fs.Arg(0), func(ctx context.Context, c *Components, id models.DocumentID, format cli.OutputFormat) error {
		anns, err := c.Service.Annotations(ctx, id)
		if err != nil {
			return err
		}
		return cli.WriteAnnotations(os.Stdout, anns, format)
	})
}

func runLibrary(args []string) error {
	fs := flag.NewFlagSet("library", flag.ExitOnError)
	flags := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "number of entries")
	_ = fs.Parse(args)
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(*flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c, err := initializeComponents(cfg, *flags.debug, true)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	entries, err := c.Service.Recent(ctx, 0, *limit)
	if err != nil {
		return err
	}
	return cli.WriteLibrary(os.Stdout, entries, format)
}

func printUsage() {
	fmt.Println(`yomu - Document viewing backend

Usage:
  yomu server [flags]                  Start the HTTP API for the viewer UI
  yomu info [flags] <file>             Show page count and page size
  yomu text [flags] <file>             Print the text fragments of a page
  yomu search [flags] <file> <query>   Find text in a document
  yomu search --library <query>        Find text across the library
  yomu render [flags] <file>           Render a page (or a tile) to an image file
  yomu preview [flags] <file>          Write a first-page thumbnail
  yomu annotations [flags] <file>      List markup annotations
  yomu library [flags]                 List recently opened documents
  yomu version                         Show version
  yomu help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/yomu/config.yaml)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Render Flags:
  --page int         Zero-based page index (default: 0)
  --width int        Target width in pixels (default: 1200)
  --tile string      Tile rectangle x,y,w,h in scaled pixels
  --out string       Output file

Examples:
  yomu server
  yomu info --outline paper.pdf
  yomu text --page 3 paper.pdf
  yomu search paper.pdf "gradient descent"
  yomu search --library --fuzzy gradiant
  yomu render --page 0 --width 800 paper.pdf
  yomu render --tile 0,0,256,256 --width 2400 paper.pdf
  yomu annotations --output json paper.pdf`)
}
