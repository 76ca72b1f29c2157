package worker

import (
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "worker"

	defaultChunkSize = 32 * 1024
)

// Worker performs one streaming transfer: GET the source URL, write the body
// to the destination path in fixed-size chunks, emit a progress event per
// chunk. Stop is cooperative: the flag is checked at chunk boundaries only,
// never mid-chunk. Exactly one terminal event (Completed, Error or Paused) is
// emitted per Start.
type Worker struct {
	itemID    int64
	sourceURL string
	destPath  string

	fs        afero.Fs
	client    *http.Client
	chunkSize int
	events    chan<- entity.Event

	stopped atomic.Bool
	log     *slog.Logger
}

func (w *Worker) Start() {
	go w.run()
}

// Stop requests cooperative cancellation. It never blocks and never
// interrupts in-flight I/O; the partial file stays on disk.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

func (w *Worker) run() {
	// The Downloading event goes out before the first byte is requested.
	w.emit(entity.Event{ItemID: w.itemID, Status: entity.StatusDownloading})

	resp, err := w.client.Get(w.sourceURL)
	if err != nil {
		w.fail("cannot fetch source", err, 0, 0)

		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		w.log.Error("Bad response status", slog.Int64("item_id", w.itemID), slog.Int("status_code", resp.StatusCode))
		w.emit(entity.Event{ItemID: w.itemID, Status: entity.StatusError, Terminal: true})

		return
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	file, err := w.fs.Create(w.destPath)
	if err != nil {
		w.fail("cannot create destination file", err, 0, total)

		return
	}

	var written int64
	buf := make([]byte, w.chunkSize)

	for {
		if w.stopped.Load() {
			if err := file.Close(); err != nil {
				w.log.Error("Cannot close destination file", slog.Int64("item_id", w.itemID), slog.Any("error", err))
			}
			w.emit(entity.Event{
				ItemID:   w.itemID,
				Status:   entity.StatusPaused,
				Progress: percent(written, total),
				Written:  written,
				Size:     total,
				Terminal: true,
			})

			return
		}

		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				_ = file.Close()
				w.fail("cannot write destination file", werr, written, total)

				return
			}
			written += int64(n)

			w.emit(entity.Event{
				ItemID:   w.itemID,
				Status:   entity.StatusDownloading,
				Progress: percent(written, total),
				Written:  written,
				Size:     total,
			})
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			_ = file.Close()
			w.fail("cannot read response body", err, written, total)

			return
		}
	}

	if err := file.Close(); err != nil {
		w.fail("cannot close destination file", err, written, total)

		return
	}

	w.emit(entity.Event{
		ItemID:   w.itemID,
		Status:   entity.StatusCompleted,
		Progress: 100,
		Written:  written,
		Size:     total,
		Terminal: true,
	})
}

func (w *Worker) fail(msg string, err error, written, total int64) {
	w.log.Error("Transfer failed: "+msg, slog.Int64("item_id", w.itemID), slog.Any("error", err))
	w.emit(entity.Event{
		ItemID:   w.itemID,
		Status:   entity.StatusError,
		Progress: percent(written, total),
		Written:  written,
		Size:     total,
		Terminal: true,
	})
}

func (w *Worker) emit(ev entity.Event) {
	w.events <- ev
}

// percent reports 0 while the total size is unknown.
func percent(written, total int64) int {
	if total <= 0 {
		return 0
	}

	return int(written * 100 / total)
}
