package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sagereplay/sagereplay/internal/util"
)

// cacheSize is the number of distinct URLs kept per table.
const cacheSize = 2

// Cache holds item-level tables and asset-length tables keyed by source
// URL. Entries never expire. Concurrent misses on the same key share one
// download.
type Cache struct {
	getter  Getter
	levels  *lru.Cache[string, map[string]int]
	lengths *lru.Cache[string, map[string]int]
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCache creates an empty cache downloading through getter.
func NewCache(getter Getter) *Cache {
	levels, _ := lru.New[string, map[string]int](cacheSize)
	lengths, _ := lru.New[string, map[string]int](cacheSize)
	return &Cache{
		getter:  getter,
		levels:  levels,
		lengths: lengths,
		logger:  util.ComponentLogger("assets"),
	}
}

// ItemLevels returns the item-level table stored at url.
func (c *Cache) ItemLevels(ctx context.Context, url string) (map[string]int, error) {
	if table, ok := c.levels.Get(url); ok {
		return table, nil
	}

	table, shared, err := c.shared(ctx, "levels:"+url, func(ctx context.Context) (map[string]int, error) {
		if table, ok := c.levels.Get(url); ok {
			return table, nil
		}
		raw, err := c.getter.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		plain, err := Inflate(raw)
		if err != nil {
			return nil, &AssetFetchError{URL: url, Err: err}
		}
		table, err := ParseItemLevels(plain)
		if err != nil {
			return nil, &AssetFetchError{URL: url, Err: err}
		}
		c.levels.Add(url, table)
		c.logger.Info().Str("url", url).Int("items", len(table)).Msg("item levels cached")
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Str("url", url).Msg("item levels download shared")
	}
	return table, nil
}

// AssetLengths returns the downloaded byte length of each named asset under
// baseURL ("<base>/<name>.bin"). Downloads run in names order.
func (c *Cache) AssetLengths(ctx context.Context, baseURL string, names []string) (map[string]int, error) {
	base := strings.TrimRight(baseURL, "/")
	key := base + "?" + strings.Join(names, ",")
	if table, ok := c.lengths.Get(key); ok {
		return table, nil
	}

	table, _, err := c.shared(ctx, "lengths:"+key, func(ctx context.Context) (map[string]int, error) {
		if table, ok := c.lengths.Get(key); ok {
			return table, nil
		}
		table := make(map[string]int, len(names))
		for _, name := range names {
			raw, err := c.getter.Get(ctx, base+"/"+name+".bin")
			if err != nil {
				return nil, err
			}
			table[name] = len(raw)
		}
		c.lengths.Add(key, table)
		c.logger.Info().Str("base", base).Int("assets", len(table)).Msg("asset lengths cached")
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// shared runs fetch once per key for all concurrent callers. The download
// is detached from the caller that started it, so one session giving up does
// not fail the others; each caller stops waiting when its own ctx is done.
// The fetcher's request timeout still bounds the download.
func (c *Cache) shared(ctx context.Context, key string, fetch func(context.Context) (map[string]int, error)) (map[string]int, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(map[string]int), res.Shared, nil
	}
}

// Len reports the number of cached tables of each kind.
func (c *Cache) Len() (levels, lengths int) {
	return c.levels.Len(), c.lengths.Len()
}

type itemLevel struct {
	ID    any `json:"id"`
	Level any `json:"level"`
}

// ParseItemLevels decodes a JSON array of {id, level} records. Records
// without an id are skipped; a missing or malformed level reads as 0.
func ParseItemLevels(data []byte) (map[string]int, error) {
	var items []itemLevel
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing item levels: %w", err)
	}

	table := make(map[string]int, len(items))
	for _, item := range items {
		id, ok := jsonString(item.ID)
		if !ok || id == "" {
			continue
		}
		table[id] = jsonInt(item.Level)
	}
	return table, nil
}

func jsonString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

func jsonInt(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}
