package history

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	KeyCompleted = "cnt" // HASH. link_id -> completed download count. HINCRBY allows atomic increment.

	KeyPrefix    = "fdl"
	KeySeparator = ":"
)

// historyRepository keeps per-link completed-download counters in redis.
// Counters survive restarts; they carry no queue state.
type historyRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewHistoryRepository(cl *redis.Client, log *slog.Logger) *historyRepository {
	return &historyRepository{
		cl:  cl,
		log: log.With(slog.String("item", "HistoryRepository")),
	}
}

func (r *historyRepository) Inc(ctx context.Context, linkID string) (int64, error) {
	counter, err := r.cl.HIncrBy(ctx, getKey(KeyPrefix, KeyCompleted), linkID, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment counter for link %s: %w", linkID, err)
	}

	return counter, nil
}

func (r *historyRepository) All(ctx context.Context) (map[string]int64, error) {
	values, err := r.cl.HGetAll(ctx, getKey(KeyPrefix, KeyCompleted)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get counters: %w", err)
	}

	counters := make(map[string]int64, len(values))
	for linkID, value := range values {
		c, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.log.Error("cannot convert counter to int", slog.String("link_id", linkID), slog.Any("error", err))

			continue
		}

		counters[linkID] = c
	}

	return counters, nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
