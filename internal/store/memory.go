package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// MemoryRepository keeps quote series in process. Series are ordered by date.
type MemoryRepository struct {
	mu     sync.RWMutex
	series map[string][]models.Quote // commodity|market -> quotes by date
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{series: make(map[string][]models.Quote)}
}

func seriesKey(q models.Quote) string {
	return strings.ToLower(q.Commodity) + "|" + q.Market
}

// Upsert implements QuoteRepository.
func (m *MemoryRepository) Upsert(_ context.Context, quotes []models.Quote) (UpsertStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats UpsertStats
	for _, q := range quotes {
		key := seriesKey(q)
		s := m.series[key]
		i := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(q.Date) })
		if (i < len(s) && sameDay(s[i].Date, q.Date)) || (i > 0 && sameDay(s[i-1].Date, q.Date)) {
			stats.Skipped++
			continue
		}

		if i > 0 {
			if v := Variation(s[i-1].Value, q.Value); v != nil {
				q.Variation = v
			}
		}
		s = append(s, models.Quote{})
		copy(s[i+1:], s[i:])
		s[i] = q
		stats.Inserted++

		if i+1 < len(s) {
			s[i+1].Variation = Variation(q.Value, s[i+1].Value)
			stats.Recomputed++
		}
		m.series[key] = s
	}
	return stats, nil
}

// History implements QuoteRepository.
func (m *MemoryRepository) History(_ context.Context, commodity string, since time.Time) ([]models.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := strings.ToLower(commodity) + "|"
	var out []models.Quote
	for key, s := range m.series {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for _, q := range s {
			if !q.Date.Before(since) {
				out = append(out, q)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Market < out[j].Market
	})
	return out, nil
}

// Close implements QuoteRepository.
func (m *MemoryRepository) Close() error { return nil }
