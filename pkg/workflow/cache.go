package workflow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Cache keeps compiled programs per flow. An entry is reused while the flow's
// UpdatedAt is unchanged.
type Cache struct {
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	updatedAt time.Time
	program   *Program
}

func NewCache(logger *slog.Logger) *Cache {
	return &Cache{
		logger:  logger,
		entries: make(map[string]cacheEntry),
	}
}

// Program returns the compiled program for flow, compiling it on a miss. Compile
// errors are not cached.
func (c *Cache) Program(flow *models.Flow) (*Program, error) {
	c.mu.Lock()
	entry, ok := c.entries[flow.ID]
	c.mu.Unlock()

	if ok && entry.updatedAt.Equal(flow.UpdatedAt) {
		return entry.program, nil
	}

	program, err := Compile(c.logger, flow)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[flow.ID] = cacheEntry{updatedAt: flow.UpdatedAt, program: program}
	c.mu.Unlock()

	return program, nil
}
