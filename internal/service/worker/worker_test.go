package worker

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 5 * time.Second

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectUntilTerminal(t *testing.T, events <-chan entity.Event) []entity.Event {
	t.Helper()

	var got []entity.Event
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Terminal {
				return got
			}
		case <-time.After(eventTimeout):
			t.Fatal("no terminal event")
		}
	}
}

func TestWorkerCompletes(t *testing.T) {
	body := make([]byte, 1000)
	for i := range body {
		body[i] = byte(i)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	events := make(chan entity.Event, 128)
	factory := NewFactory(fs, srv.Client(), 100, discardLog())

	factory.New(1, srv.URL, "/dl/track.mp3", events).Start()
	got := collectUntilTerminal(t, events)

	// The Downloading event precedes any transfer progress.
	require.Equal(t, entity.StatusDownloading, got[0].Status)
	require.Zero(t, got[0].Written)

	last := got[len(got)-1]
	require.Equal(t, entity.StatusCompleted, last.Status)
	require.Equal(t, 100, last.Progress)
	require.EqualValues(t, len(body), last.Written)

	// Progress is non-decreasing within one run.
	prev := 0
	for _, ev := range got[1:] {
		require.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
	}

	data, err := afero.ReadFile(fs, "/dl/track.mp3")
	require.NoError(t, err)
	require.Equal(t, body, data)
}

func TestWorkerUnknownLengthReportsZeroPercent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		for i := 0; i < 5; i++ {
			fmt.Fprint(w, "0123456789")
			fl.Flush()
		}
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	events := make(chan entity.Event, 128)
	factory := NewFactory(fs, srv.Client(), 10, discardLog())

	factory.New(1, srv.URL, "/dl/stream.mp3", events).Start()
	got := collectUntilTerminal(t, events)

	last := got[len(got)-1]
	require.Equal(t, entity.StatusCompleted, last.Status)
	require.EqualValues(t, 50, last.Written)

	for _, ev := range got[:len(got)-1] {
		require.Zero(t, ev.Progress)
	}
}

func TestWorkerStopLeavesPartialFile(t *testing.T) {
	total := 10000
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(total))
		fl := w.(http.Flusher)

		if _, err := w.Write(make([]byte, 100)); err != nil {
			return
		}
		fl.Flush()
		<-release

		// Keep serving until the worker drops the connection.
		for {
			if _, err := w.Write(make([]byte, 100)); err != nil {
				return
			}
			fl.Flush()
		}
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	events := make(chan entity.Event, 128)
	factory := NewFactory(fs, srv.Client(), 100, discardLog())

	w := factory.New(1, srv.URL, "/dl/long.mp3", events)
	w.Start()

	// Wait for the first chunk, then request a cooperative stop.
	var written int64
	for ev := range events {
		if ev.Written > 0 {
			written = ev.Written

			break
		}
	}
	w.Stop()
	close(release)

	got := collectUntilTerminal(t, events)
	last := got[len(got)-1]
	require.Equal(t, entity.StatusPaused, last.Status)
	require.GreaterOrEqual(t, last.Written, written)
	require.Less(t, last.Written, int64(total))

	info, err := fs.Stat("/dl/long.mp3")
	require.NoError(t, err)
	require.Equal(t, last.Written, info.Size())
}

func TestWorkerBadStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	events := make(chan entity.Event, 16)
	factory := NewFactory(fs, srv.Client(), 100, discardLog())

	factory.New(1, srv.URL, "/dl/missing.mp3", events).Start()
	got := collectUntilTerminal(t, events)

	require.Equal(t, entity.StatusError, got[len(got)-1].Status)

	// No destination file is created on an HTTP error.
	exists, err := afero.Exists(fs, "/dl/missing.mp3")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestWorkerNetworkFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	fs := afero.NewMemMapFs()
	events := make(chan entity.Event, 16)
	factory := NewFactory(fs, &http.Client{}, 100, discardLog())

	factory.New(1, url, "/dl/unreachable.mp3", events).Start()
	got := collectUntilTerminal(t, events)

	require.Equal(t, entity.StatusError, got[len(got)-1].Status)
}

func TestWorkerFilesystemFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	events := make(chan entity.Event, 16)
	factory := NewFactory(fs, srv.Client(), 100, discardLog())

	factory.New(1, srv.URL, "/dl/denied.mp3", events).Start()
	got := collectUntilTerminal(t, events)

	require.Equal(t, entity.StatusError, got[len(got)-1].Status)
}
