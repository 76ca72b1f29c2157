package httphandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jgivc/fetchdl/internal/common"
	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	items     []entity.Item
	paused    []int64
	cancelled []int64
	enqueued  []int64
	maxSet    int
	dirSet    string
	allRun    bool
	added     int
	scanErr   error
}

func (f *fakeManager) Discover(_ context.Context, _ string) (int, error) {
	if f.scanErr != nil {
		return 0, f.scanErr
	}

	return f.added, nil
}

func (f *fakeManager) EnqueueAll() { f.allRun = true }

func (f *fakeManager) EnqueueNow(id int64) error {
	f.enqueued = append(f.enqueued, id)

	return nil
}

func (f *fakeManager) Pause(id int64) error {
	if id == 42 {
		return common.ErrItemNotFoundError
	}
	f.paused = append(f.paused, id)

	return nil
}

func (f *fakeManager) Cancel(id int64) error {
	f.cancelled = append(f.cancelled, id)

	return nil
}

func (f *fakeManager) SetConcurrencyCap(n int) error {
	if n < 1 {
		return common.ErrBadConcurrencyValueError
	}
	f.maxSet = n

	return nil
}

func (f *fakeManager) SetSaveDir(dir string) { f.dirSet = dir }

func (f *fakeManager) Items() []entity.Item { return f.items }

func newTestMux(srv *fakeManager) *http.ServeMux {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	mux.Handle("POST /scan/{$}", NewScanHandler("http://archive.test/page", srv, log))
	mux.Handle("GET /items/{$}", NewItemsHandler(srv, log))
	mux.Handle("POST /items/enqueue/{$}", NewEnqueueAllHandler(srv, log))
	mux.Handle("POST /items/{id}/enqueue/{$}", NewEnqueueNowHandler(srv, log))
	mux.Handle("POST /items/{id}/pause/{$}", NewPauseHandler(srv, log))
	mux.Handle("POST /items/{id}/cancel/{$}", NewCancelHandler(srv, log))
	mux.Handle("PUT /settings/concurrency/{$}", NewConcurrencyHandler(srv, log))
	mux.Handle("PUT /settings/dir/{$}", NewSaveDirHandler(srv, log))

	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func TestScanHandler(t *testing.T) {
	srv := &fakeManager{added: 3}
	mux := newTestMux(srv)

	rec := do(mux, http.MethodPost, "/scan/", `{"url": "http://archive.test/other"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Added)

	// Empty body falls back to the configured URL.
	rec = do(mux, http.MethodPost, "/scan/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	srv.scanErr = common.ErrNoLinksFoundError
	rec = do(mux, http.MethodPost, "/scan/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	srv.scanErr = common.ErrScanHasAlreadyStarted
	rec = do(mux, http.MethodPost, "/scan/", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestItemsHandler(t *testing.T) {
	srv := &fakeManager{
		items: []entity.Item{
			{ID: 1, DisplayName: "Track 1.mp3", SourceURL: "http://x/1.mp3", Status: entity.StatusDownloading, Progress: 42, Written: 420, Size: 1000},
			{ID: 2, DisplayName: "Track 2.mp3", SourceURL: "http://x/2.mp3", Status: entity.StatusPending},
		},
	}
	mux := newTestMux(srv)

	rec := do(mux, http.MethodGet, "/items/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []itemRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "downloading", rows[0].Status)
	require.Equal(t, 42, rows[0].Progress)
	require.Equal(t, "pending", rows[1].Status)
}

func TestItemIntents(t *testing.T) {
	srv := &fakeManager{}
	mux := newTestMux(srv)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/items/enqueue/", "").Code)
	require.True(t, srv.allRun)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/items/7/enqueue/", "").Code)
	require.Equal(t, []int64{7}, srv.enqueued)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/items/7/pause/", "").Code)
	require.Equal(t, []int64{7}, srv.paused)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPost, "/items/7/cancel/", "").Code)
	require.Equal(t, []int64{7}, srv.cancelled)

	require.Equal(t, http.StatusNotFound, do(mux, http.MethodPost, "/items/42/pause/", "").Code)
	require.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/items/abc/pause/", "").Code)
}

func TestSettingsHandlers(t *testing.T) {
	srv := &fakeManager{}
	mux := newTestMux(srv)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPut, "/settings/concurrency/", `{"max": 4}`).Code)
	require.Equal(t, 4, srv.maxSet)

	require.Equal(t, http.StatusBadRequest, do(mux, http.MethodPut, "/settings/concurrency/", `{"max": 0}`).Code)
	require.Equal(t, http.StatusBadRequest, do(mux, http.MethodPut, "/settings/concurrency/", "not json").Code)

	require.Equal(t, http.StatusOK, do(mux, http.MethodPut, "/settings/dir/", `{"dir": "/music"}`).Code)
	require.Equal(t, "/music", srv.dirSet)

	require.Equal(t, http.StatusBadRequest, do(mux, http.MethodPut, "/settings/dir/", `{}`).Code)
}
