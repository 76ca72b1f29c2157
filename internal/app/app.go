package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/fetchdl/internal/adapter/scrape"
	"github.com/jgivc/fetchdl/internal/config"
	httphandler "github.com/jgivc/fetchdl/internal/handler/http"
	"github.com/jgivc/fetchdl/internal/repository/history"
	"github.com/jgivc/fetchdl/internal/service/manager"
	"github.com/jgivc/fetchdl/internal/service/watch"
	"github.com/jgivc/fetchdl/internal/service/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const (
	scanTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	mgr     *manager.Manager
	watcher *watch.Watcher
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		panic(err)
	}

	rdb := redis.NewClient(opt)
	ctx := context.Background()
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		panic(err)
	}

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(a.cfg.Download.Dir, 0o755); err != nil {
		panic(err)
	}

	hrepo := history.NewHistoryRepository(rdb, log)
	scraper := scrape.New(a.cfg.Scrape.Extensions, log)
	fetcher := scrape.NewPageFetcher(a.cfg.FetchTimeout())
	factory := worker.NewFactory(fs, &http.Client{}, a.cfg.Download.ChunkSize, log)

	a.mgr = manager.New(manager.Config{
		SaveDir:       a.cfg.Download.Dir,
		MaxConcurrent: a.cfg.Download.MaxConcurrent,
		Markdown:      a.cfg.Scrape.Markdown,
	}, fs, fetcher, scraper, factory, hrepo, log)

	if interval := a.cfg.ScrapeInterval(); interval > 0 && a.cfg.URL != "" {
		a.watcher = watch.New(a.cfg.URL, interval, a.mgr, log)
		go a.watcher.Start(ctx)
	}

	http.Handle("POST /scan/{$}", httphandler.NewScanHandler(a.cfg.URL, a.mgr, log))
	http.Handle("GET /items/{$}", httphandler.NewItemsHandler(a.mgr, log))
	http.Handle("POST /items/enqueue/{$}", httphandler.NewEnqueueAllHandler(a.mgr, log))
	http.Handle("POST /items/{id}/enqueue/{$}", httphandler.NewEnqueueNowHandler(a.mgr, log))
	http.Handle("POST /items/{id}/pause/{$}", httphandler.NewPauseHandler(a.mgr, log))
	http.Handle("POST /items/{id}/cancel/{$}", httphandler.NewCancelHandler(a.mgr, log))
	http.Handle("PUT /settings/concurrency/{$}", httphandler.NewConcurrencyHandler(a.mgr, log))
	http.Handle("PUT /settings/dir/{$}", httphandler.NewSaveDirHandler(a.mgr, log))
	http.Handle("GET /stats/{$}", httphandler.NewStatsHandler(hrepo, log))

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// Scan triggers a one-off discovery of the configured page (SIGUSR1).
func (a *App) Scan() {
	if a.cfg.URL == "" {
		fmt.Println("No page url configured")

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	fmt.Println("Scanning...")

	added, err := a.mgr.Discover(ctx, a.cfg.URL)
	if err != nil {
		fmt.Printf("Cannot scan page: %s\n", err)

		return
	}

	fmt.Printf("Added %d new links.\n", added)
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.watcher != nil {
		a.watcher.Stop()
	}

	a.srv.Shutdown(ctx)

	if err := a.mgr.Stop(ctx); err != nil {
		a.log.Error("Cannot stop manager", slog.Any("error", err))
	}
}
