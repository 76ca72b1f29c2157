package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/fetchdl/internal/common"
	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/jgivc/fetchdl/internal/util"
	"github.com/spf13/afero"
)

const (
	serviceName = "manager"

	eventBufferSize = 64
	historyTimeout  = 5 * time.Second
	drainPollPeriod = 50 * time.Millisecond
)

// Worker is one running transfer. Stop requests cooperative cancellation;
// the worker confirms by emitting its terminal event.
type Worker interface {
	Start()
	Stop()
}

type WorkerFactory interface {
	New(itemID int64, sourceURL, destPath string, events chan<- entity.Event) Worker
}

type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

type LinkExtractor interface {
	ExtractHTML(pageText []byte, baseURL string) ([]entity.LinkRecord, error)
	ExtractMarkdown(pageText []byte, baseURL string) ([]entity.LinkRecord, error)
}

type HistoryRepository interface {
	Inc(ctx context.Context, linkID string) (int64, error)
}

// Listener receives every item event: worker progress and status changes as
// well as transitions triggered by user intents.
type Listener func(entity.Event)

type Config struct {
	SaveDir       string
	MaxConcurrent int
	Markdown      bool
}

// Manager owns the item table, the pending queue and the active worker set.
// All state lives under one mutex; worker events arrive on a single channel
// drained by one dispatch goroutine, so admission decisions, queue pops and
// slot releases are serialized.
type Manager struct {
	mu        sync.Mutex
	items     map[int64]*entity.Item
	order     []int64
	queue     queue
	active    map[int64]Worker
	cancelReq map[int64]struct{}
	known     map[string]struct{}
	maxActive int
	saveDir   string
	markdown  bool
	nextID    int64
	listeners []Listener
	scanning  atomic.Bool

	events chan entity.Event
	done   chan struct{}

	fs        afero.Fs
	fetcher   PageFetcher
	extractor LinkExtractor
	factory   WorkerFactory
	history   HistoryRepository

	log *slog.Logger
}

func New(cfg Config, fs afero.Fs, fetcher PageFetcher, extractor LinkExtractor,
	factory WorkerFactory, history HistoryRepository, log *slog.Logger) *Manager {
	maxActive := cfg.MaxConcurrent
	if maxActive < 1 {
		maxActive = 1
	}

	m := &Manager{
		items:     make(map[int64]*entity.Item),
		active:    make(map[int64]Worker),
		cancelReq: make(map[int64]struct{}),
		known:     make(map[string]struct{}),
		maxActive: maxActive,
		saveDir:   cfg.SaveDir,
		markdown:  cfg.Markdown,
		events:    make(chan entity.Event, eventBufferSize),
		done:      make(chan struct{}),
		fs:        fs,
		fetcher:   fetcher,
		extractor: extractor,
		factory:   factory,
		history:   history,
		log:       log.With(slog.String("service", serviceName)),
	}

	go m.dispatch()

	return m
}

// AddListener registers a presentation callback. Must be called during
// wiring, before any item activity.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, l)
}

// Discover fetches the page, extracts candidate links and creates Pending
// items for the ones not seen before. Returns the number of new items.
func (m *Manager) Discover(ctx context.Context, pageURL string) (int, error) {
	if !m.scanning.CompareAndSwap(false, true) {
		return 0, common.ErrScanHasAlreadyStarted
	}
	defer m.scanning.Store(false)

	pageText, err := m.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("cannot fetch page: %w", err)
	}

	base := parentURL(pageURL)

	var records []entity.LinkRecord
	if m.markdown {
		records, err = m.extractor.ExtractMarkdown(pageText, base)
	} else {
		records, err = m.extractor.ExtractHTML(pageText, base)
	}
	if err != nil {
		return 0, fmt.Errorf("cannot extract links: %w", err)
	}

	if len(records) < 1 {
		return 0, common.ErrNoLinksFoundError
	}

	m.mu.Lock()
	added := 0
	for _, rec := range records {
		linkID := util.GetIDFromString(&rec.URL)
		if _, exists := m.known[linkID]; exists {
			continue
		}
		m.known[linkID] = struct{}{}

		m.nextID++
		item := &entity.Item{
			ID:          m.nextID,
			LinkID:      linkID,
			SourceURL:   rec.URL,
			DisplayName: rec.Name,
			Status:      entity.StatusPending,
		}
		m.items[item.ID] = item
		m.order = append(m.order, item.ID)
		added++
	}
	m.mu.Unlock()

	m.log.Info("Discovered links", slog.String("page_url", pageURL),
		slog.Int("found", len(records)), slog.Int("added", added))

	return added, nil
}

// EnqueueAll moves every Pending item to the queue tail in table order, then
// runs admission.
func (m *Manager) EnqueueAll() {
	m.mu.Lock()
	var notifications []entity.Event
	for _, id := range m.order {
		item := m.items[id]
		if item.Status != entity.StatusPending {
			continue
		}

		if err := entity.Transition(item, entity.StatusQueued); err != nil {
			m.log.Error("Cannot enqueue item", slog.Int64("item_id", id), slog.Any("error", err))

			continue
		}
		m.queue.PushBack(id)
		notifications = append(notifications, statusEvent(item))
	}
	notifications = append(notifications, m.admitLocked()...)
	m.mu.Unlock()

	m.notify(notifications)
}

// EnqueueNow puts the item at the queue head. Legal from Pending, Paused and
// Error (explicit re-download); a Queued item is just moved to the front.
func (m *Manager) EnqueueNow(id int64) error {
	m.mu.Lock()
	item, exists := m.items[id]
	if !exists {
		m.mu.Unlock()

		return common.ErrItemNotFoundError
	}

	if _, running := m.active[id]; running {
		m.mu.Unlock()

		return common.ErrItemNotRestartableError
	}

	var notifications []entity.Event
	switch item.Status {
	case entity.StatusQueued:
		m.queue.Remove(id)
		m.queue.PushFront(id)
	case entity.StatusPending, entity.StatusPaused, entity.StatusError:
		if err := entity.Transition(item, entity.StatusQueued); err != nil {
			m.mu.Unlock()

			return err
		}
		m.queue.PushFront(id)
		notifications = append(notifications, statusEvent(item))
	default:
		m.mu.Unlock()

		return common.ErrItemNotRestartableError
	}

	notifications = append(notifications, m.admitLocked()...)
	m.mu.Unlock()

	m.notify(notifications)

	return nil
}

// Pause stops the item's worker cooperatively. The slot is released only when
// the worker confirms with its terminal event, never here. A queued item that
// has not started yet is removed from the queue and marked Cancelled, as the
// original behaves.
func (m *Manager) Pause(id int64) error {
	m.mu.Lock()
	item, exists := m.items[id]
	if !exists {
		m.mu.Unlock()

		return common.ErrItemNotFoundError
	}

	if w, running := m.active[id]; running {
		m.mu.Unlock()
		w.Stop()

		return nil
	}

	notifications := m.dropQueuedLocked(item)
	m.mu.Unlock()

	m.notify(notifications)

	return nil
}

// Cancel stops the worker and, once it confirmed stopping, deletes the
// partial file and marks the item Cancelled. A queued item is removed without
// touching the filesystem: no file exists yet.
func (m *Manager) Cancel(id int64) error {
	m.mu.Lock()
	item, exists := m.items[id]
	if !exists {
		m.mu.Unlock()

		return common.ErrItemNotFoundError
	}

	if w, running := m.active[id]; running {
		m.cancelReq[id] = struct{}{}
		m.mu.Unlock()
		w.Stop()

		return nil
	}

	notifications := m.dropQueuedLocked(item)
	m.mu.Unlock()

	m.notify(notifications)

	return nil
}

func (m *Manager) SetConcurrencyCap(n int) error {
	if n < 1 {
		return common.ErrBadConcurrencyValueError
	}

	m.mu.Lock()
	m.maxActive = n
	notifications := m.admitLocked()
	m.mu.Unlock()

	m.notify(notifications)

	return nil
}

func (m *Manager) ConcurrencyCap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.maxActive
}

// SetSaveDir changes where subsequently admitted items land. Items already
// handed to a worker keep their destination.
func (m *Manager) SetSaveDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveDir = dir
}

func (m *Manager) SaveDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveDir
}

// Items returns a snapshot of all items in table order.
func (m *Manager) Items() []entity.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]entity.Item, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, *m.items[id])
	}

	return items
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.active)
}

// Stop requests cooperative stop of every active worker and waits for the
// slots to drain. A transfer hung in network I/O cannot observe the stop flag
// and holds its slot until the context expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	for _, w := range m.active {
		w.Stop()
	}
	m.mu.Unlock()

	ticker := time.NewTicker(drainPollPeriod)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		n := len(m.active)
		m.mu.Unlock()

		if n == 0 {
			close(m.done)

			return nil
		}

		select {
		case <-ctx.Done():
			close(m.done)

			return fmt.Errorf("cannot drain active transfers: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// dispatch serializes reconciliation of worker events.
func (m *Manager) dispatch() {
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev entity.Event) {
	m.mu.Lock()
	item, exists := m.items[ev.ItemID]
	if !exists {
		m.mu.Unlock()

		return
	}

	if !ev.Terminal {
		if item.Status == entity.StatusDownloading {
			item.Progress = ev.Progress
			item.Written = ev.Written
			if ev.Size > 0 {
				item.Size = ev.Size
			}
		}
		m.mu.Unlock()

		m.notify([]entity.Event{ev})

		return
	}

	// Terminal: the worker is done, release the slot here and nowhere else.
	delete(m.active, ev.ItemID)
	_, cancelled := m.cancelReq[ev.ItemID]
	delete(m.cancelReq, ev.ItemID)

	item.Written = ev.Written
	if ev.Size > 0 {
		item.Size = ev.Size
	}

	var notifications []entity.Event
	switch ev.Status {
	case entity.StatusCompleted:
		if err := entity.Transition(item, entity.StatusCompleted); err != nil {
			m.log.Error("Cannot complete item", slog.Int64("item_id", item.ID), slog.Any("error", err))
		} else {
			item.Progress = 100
			m.recordCompletion(item.LinkID)
		}
		notifications = append(notifications, statusEvent(item))

	case entity.StatusPaused, entity.StatusError:
		to := entity.StatusPaused
		if ev.Status == entity.StatusError {
			to = entity.StatusError
		}
		if cancelled {
			m.removeFileLocked(item)
			to = entity.StatusCancelled
		}
		if err := entity.Transition(item, to); err != nil {
			m.log.Error("Cannot finish item", slog.Int64("item_id", item.ID), slog.Any("error", err))
		} else {
			item.Progress = ev.Progress
		}
		notifications = append(notifications, statusEvent(item))

	default:
		m.log.Error("Unexpected terminal event", slog.Int64("item_id", item.ID), slog.String("status", string(ev.Status)))
	}

	notifications = append(notifications, m.admitLocked()...)
	m.mu.Unlock()

	m.notify(notifications)
}

// admitLocked is the single chokepoint that enforces the concurrency cap:
// every path that frees or demands capacity funnels through it. Caller holds
// the mutex.
func (m *Manager) admitLocked() []entity.Event {
	var notifications []entity.Event
	for len(m.active) < m.maxActive {
		id, ok := m.queue.PopFront()
		if !ok {
			break
		}

		item := m.items[id]
		if err := entity.Transition(item, entity.StatusDownloading); err != nil {
			m.log.Error("Cannot admit item", slog.Int64("item_id", id), slog.Any("error", err))

			continue
		}

		// The destination is derived from the save dir as of admission,
		// not discovery.
		item.DestPath = filepath.Join(m.saveDir, item.DisplayName)

		w := m.factory.New(item.ID, item.SourceURL, item.DestPath, m.events)
		m.active[id] = w
		w.Start()

		m.log.Info("Admitted item", slog.Int64("item_id", id), slog.String("dest", item.DestPath))
		notifications = append(notifications, statusEvent(item))
	}

	return notifications
}

// dropQueuedLocked removes an idle queued item and marks it Cancelled.
// Items in any other idle state are left alone.
func (m *Manager) dropQueuedLocked(item *entity.Item) []entity.Event {
	if !m.queue.Remove(item.ID) {
		return nil
	}

	if err := entity.Transition(item, entity.StatusCancelled); err != nil {
		m.log.Error("Cannot cancel queued item", slog.Int64("item_id", item.ID), slog.Any("error", err))

		return nil
	}

	return []entity.Event{statusEvent(item)}
}

func (m *Manager) removeFileLocked(item *entity.Item) {
	if item.DestPath == "" {
		return
	}

	if err := m.fs.Remove(item.DestPath); err != nil {
		// A failed delete does not keep the item from being Cancelled.
		m.log.Error("Cannot remove partial file", slog.Int64("item_id", item.ID),
			slog.String("path", item.DestPath), slog.Any("error", err))
	}
}

func (m *Manager) recordCompletion(linkID string) {
	if m.history == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		if _, err := m.history.Inc(ctx, linkID); err != nil {
			m.log.Error("Cannot record completion", slog.String("link_id", linkID), slog.Any("error", err))
		}
	}()
}

func (m *Manager) notify(events []entity.Event) {
	if len(events) == 0 {
		return
	}

	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}

func statusEvent(item *entity.Item) entity.Event {
	return entity.Event{
		ItemID:   item.ID,
		Status:   item.Status,
		Progress: item.Progress,
		Written:  item.Written,
		Size:     item.Size,
		Terminal: item.Status.IsTerminal() || item.Status == entity.StatusPaused || item.Status == entity.StatusError,
	}
}

// parentURL mirrors the original scraper: links resolve against the page URL
// with its last path segment dropped.
func parentURL(pageURL string) string {
	slash := strings.LastIndex(pageURL, "/")
	if scheme := strings.Index(pageURL, "//"); slash > scheme+1 {
		return pageURL[:slash]
	}

	return pageURL
}
