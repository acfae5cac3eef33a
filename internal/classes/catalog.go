package classes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tdcoflosgatos/studio-assistant/internal/sheets"
	"github.com/tdcoflosgatos/studio-assistant/pkg/logging"
)

const (
	catalogCacheKey = "classes:catalog"
	catalogCacheTTL = 10 * time.Minute
)

// dayTabs are the sheet tabs the catalog is spread across, one per weekday.
var dayTabs = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Catalog loads the class schedule from the studio sheet, caching the parsed
// result in redis so every chat message doesn't hit the Sheets API.
type Catalog struct {
	reader sheets.TabReader
	redis  *redis.Client
	logger *logging.Logger
}

// NewCatalog creates a catalog. The redis client is optional; without it
// every call fetches from the sheet.
func NewCatalog(reader sheets.TabReader, rdb *redis.Client, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.Default()
	}
	return &Catalog{reader: reader, redis: rdb, logger: logger}
}

// All returns the current class list. Cache first, then the sheet, then the
// static sample catalog when the sheet is unreachable; usedSample tells the
// caller to warn the user the data may be stale.
func (c *Catalog) All(ctx context.Context) (list []Class, usedSample bool, err error) {
	if cached, ok := c.fromCache(ctx); ok {
		return cached, false, nil
	}

	list, err = c.fetch(ctx)
	if err != nil || len(list) == 0 {
		c.logger.Warn("classes: falling back to sample catalog", "error", err)
		return SampleCatalog(), true, err
	}

	c.store(ctx, list)
	return list, false, nil
}

// Reload drops the cache and refetches from the sheet.
func (c *Catalog) Reload(ctx context.Context) ([]Class, error) {
	if c.redis != nil {
		if err := c.redis.Del(ctx, catalogCacheKey).Err(); err != nil {
			c.logger.Warn("classes: failed to drop catalog cache", "error", err)
		}
	}

	list, usedSample, err := c.All(ctx)
	if usedSample {
		return list, fmt.Errorf("classes: reload used sample data: %w", err)
	}
	return list, nil
}

// fetch walks the per-day tabs. A tab that fails to load is skipped so a
// single bad day never empties the whole catalog.
func (c *Catalog) fetch(ctx context.Context) ([]Class, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("classes: no sheet reader configured")
	}

	var all []Class
	var lastErr error
	for _, day := range dayTabs {
		rows, err := c.reader.ReadTab(ctx, day)
		if err != nil {
			c.logger.Warn("classes: skipping day tab", "day", day, "error", err)
			lastErr = err
			continue
		}
		all = append(all, parseDayRows(day, rows)...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, fmt.Errorf("classes: could not fetch any class data: %w", lastErr)
	}
	return all, nil
}

// parseDayRows converts one day tab into classes. Column order follows the
// sheet: name, description, performance, time, ages, instructor. The header
// row and rows without a class name are dropped.
func parseDayRows(day string, rows [][]string) []Class {
	if len(rows) <= 1 {
		return nil
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	var out []Class
	for _, row := range rows[1:] {
		name := cell(row, 0)
		if name == "" {
			continue
		}
		out = append(out, Class{
			Name:        name,
			Description: cell(row, 1),
			Time:        cell(row, 3),
			AgeRange:    cell(row, 4),
			Instructor:  cell(row, 5),
			Day:         day,
		})
	}
	return out
}

func (c *Catalog) fromCache(ctx context.Context) ([]Class, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, catalogCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var list []Class
	if err := json.Unmarshal(data, &list); err != nil {
		c.logger.Warn("classes: dropping corrupt catalog cache", "error", err)
		_ = c.redis.Del(ctx, catalogCacheKey).Err()
		return nil, false
	}
	return list, true
}

func (c *Catalog) store(ctx context.Context, list []Class) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, catalogCacheKey, data, catalogCacheTTL).Err(); err != nil {
		c.logger.Warn("classes: failed to cache catalog", "error", err)
	}
}

// SampleCatalog is the static fallback schedule shown when the sheet cannot
// be reached.
func SampleCatalog() []Class {
	return []Class{
		{
			Name:        "Tiny Dancers",
			AgeRange:    "3-5",
			Day:         "Monday",
			Time:        "10:00 AM",
			Level:       "Beginner",
			Description: "Introduction to movement and music for our youngest dancers.",
		},
		{
			Name:        "Ballet Basics",
			AgeRange:    "5-7",
			Day:         "Tuesday",
			Time:        "4:00 PM",
			Level:       "Beginner",
			Description: "Learn the fundamentals of ballet in a fun and supportive environment.",
		},
		{
			Name:        "Hip Hop Kids",
			AgeRange:    "6-9",
			Day:         "Wednesday",
			Time:        "5:00 PM",
			Level:       "All Levels",
			Description: "High-energy class teaching hip hop basics and choreography.",
		},
		{
			Name:        "Advanced Contemporary",
			AgeRange:    "12-18",
			Day:         "Friday",
			Time:        "6:30 PM",
			Level:       "Advanced",
			Description: "For experienced dancers to explore contemporary techniques.",
		},
	}
}
