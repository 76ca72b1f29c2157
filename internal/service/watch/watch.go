package watch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jgivc/fetchdl/internal/common"
)

const (
	serviceName = "watch"

	minInterval = time.Second
)

type DiscoverService interface {
	Discover(ctx context.Context, pageURL string) (int, error)
}

// Watcher re-scrapes the source page on a fixed interval, picking up links
// that appeared after the first fetch.
type Watcher struct {
	pageURL  string
	interval time.Duration
	srv      DiscoverService
	stop     chan struct{}
	log      *slog.Logger
}

func New(pageURL string, interval time.Duration, srv DiscoverService, log *slog.Logger) *Watcher {
	if interval < minInterval {
		interval = minInterval
	}

	return &Watcher{
		pageURL:  pageURL,
		interval: interval,
		srv:      srv,
		stop:     make(chan struct{}),
		log:      log.With(slog.String("service", serviceName)),
	}
}

// Start blocks until Stop is called or the context ends; run it in its own
// goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.log.Info("Started", slog.String("page_url", w.pageURL), slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			added, err := w.srv.Discover(ctx, w.pageURL)
			if err != nil {
				if !errors.Is(err, common.ErrNoLinksFoundError) {
					w.log.Error("Cannot re-scan page", slog.String("page_url", w.pageURL), slog.Any("error", err))
				}

				continue
			}

			if added > 0 {
				w.log.Info("Added new links", slog.Int("count", added))
			}
		}
	}
}

func (w *Watcher) Stop() {
	close(w.stop)
}
