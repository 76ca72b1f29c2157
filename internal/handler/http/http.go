package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jgivc/fetchdl/internal/common"
	"github.com/jgivc/fetchdl/internal/entity"
)

type ManagerService interface {
	Discover(ctx context.Context, pageURL string) (int, error)
	EnqueueAll()
	EnqueueNow(id int64) error
	Pause(id int64) error
	Cancel(id int64) error
	SetConcurrencyCap(n int) error
	SetSaveDir(dir string)
	Items() []entity.Item
}

type StatsService interface {
	All(ctx context.Context) (map[string]int64, error)
}

type itemRow struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Written  int64  `json:"written"`
	Size     int64  `json:"size,omitempty"`
}

type scanRequest struct {
	URL string `json:"url"`
}

type scanResponse struct {
	Added int `json:"added"`
}

type concurrencyRequest struct {
	Max int `json:"max"`
}

type dirRequest struct {
	Dir string `json:"dir"`
}

func NewScanHandler(defaultURL string, srv ManagerService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ScanHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		rlog := log.With(slog.String("request_id", uuid.NewString()))

		// The body is optional; an empty or absent one falls back to the
		// configured page URL.
		var req scanRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.URL == "" {
			req.URL = defaultURL
		}
		if req.URL == "" {
			http.Error(w, "No page url configured", http.StatusBadRequest)

			return
		}

		added, err := srv.Discover(r.Context(), req.URL)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrNoLinksFoundError):
				http.Error(w, "No links found", http.StatusNotFound)
			case errors.Is(err, common.ErrSourcePageDisabledError):
				http.Error(w, "Source page is disabled", http.StatusConflict)
			case errors.Is(err, common.ErrScanHasAlreadyStarted):
				http.Error(w, "Scan has already started", http.StatusConflict)
			default:
				rlog.Error("Cannot scan page", slog.String("page_url", req.URL), slog.Any("error", err))
				http.Error(w, "Cannot scan page", http.StatusInternalServerError)
			}

			return
		}

		rlog.Info("Scan done", slog.String("page_url", req.URL), slog.Int("added", added))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(scanResponse{Added: added}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func NewItemsHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ItemsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		items := srv.Items()
		rows := make([]itemRow, 0, len(items))
		for _, item := range items {
			rows = append(rows, itemRow{
				ID:       item.ID,
				Name:     item.DisplayName,
				URL:      item.SourceURL,
				Status:   string(item.Status),
				Progress: item.Progress,
				Written:  item.Written,
				Size:     item.Size,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			log.Error("Cannot encode items", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func NewEnqueueAllHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "EnqueueAllHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		srv.EnqueueAll()
		log.Info("Enqueued pending items", slog.String("request_id", uuid.NewString()))

		w.Write([]byte("done"))
	}
}

// itemAction wraps the intents addressed to a single item.
func itemAction(name string, action func(id int64) error, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", name))

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := action(id); err != nil {
			switch {
			case errors.Is(err, common.ErrItemNotFoundError):
				http.Error(w, "Item not found", http.StatusNotFound)
			case errors.Is(err, common.ErrItemNotRestartableError):
				http.Error(w, "Item cannot be enqueued now", http.StatusConflict)
			default:
				log.Error("Intent failed", slog.Int64("item_id", id), slog.Any("error", err))
				http.Error(w, "Cannot apply action", http.StatusInternalServerError)
			}

			return
		}

		w.Write([]byte("done"))
	}
}

func NewEnqueueNowHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	return itemAction("EnqueueNowHandler", srv.EnqueueNow, log)
}

func NewPauseHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	return itemAction("PauseHandler", srv.Pause, log)
}

func NewCancelHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	return itemAction("CancelHandler", srv.Cancel, log)
}

func NewConcurrencyHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ConcurrencyHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req concurrencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		if err := srv.SetConcurrencyCap(req.Max); err != nil {
			switch {
			case errors.Is(err, common.ErrBadConcurrencyValueError):
				http.Error(w, "Concurrency must be positive", http.StatusBadRequest)
			default:
				log.Error("Cannot set concurrency", slog.Any("error", err))
				http.Error(w, "Cannot set concurrency", http.StatusInternalServerError)
			}

			return
		}

		log.Info("Concurrency changed", slog.Int("max", req.Max))

		w.Write([]byte("done"))
	}
}

func NewSaveDirHandler(srv ManagerService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "SaveDirHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req dirRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dir == "" {
			http.Error(w, "Bad request", http.StatusBadRequest)

			return
		}

		srv.SetSaveDir(req.Dir)
		log.Info("Save dir changed", slog.String("dir", req.Dir))

		w.Write([]byte("done"))
	}
}

func NewStatsHandler(srv StatsService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatsHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		counters, err := srv.All(r.Context())
		if err != nil {
			log.Error("Cannot get counters", slog.Any("error", err))
			http.Error(w, "Cannot get counters", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counters); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
