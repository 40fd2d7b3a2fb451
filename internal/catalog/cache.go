package catalog

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const tableListKey = "\x00tables"

// Cache memoizes table listings and schema descriptions for a bounded time.
// Uploads call Invalidate so a replaced table is re-read immediately.
type Cache struct {
	next    Catalog
	tables  *ttlcache.Cache[string, []string]
	schemas *ttlcache.Cache[string, Schema]
}

func NewCache(next Catalog, ttl time.Duration) *Cache {
	return &Cache{
		next:    next,
		tables:  ttlcache.New(ttlcache.WithTTL[string, []string](ttl)),
		schemas: ttlcache.New(ttlcache.WithTTL[string, Schema](ttl)),
	}
}

func (c *Cache) ListTables(ctx context.Context) ([]string, error) {
	if item := c.tables.Get(tableListKey); item != nil {
		return append([]string(nil), item.Value()...), nil
	}
	tables, err := c.next.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	c.tables.Set(tableListKey, append([]string(nil), tables...), ttlcache.DefaultTTL)
	return tables, nil
}

func (c *Cache) GetSchema(ctx context.Context, table string) (Schema, error) {
	if item := c.schemas.Get(table); item != nil {
		return item.Value(), nil
	}
	schema, err := c.next.GetSchema(ctx, table)
	if err != nil {
		return Schema{}, err
	}
	c.schemas.Set(table, schema, ttlcache.DefaultTTL)
	return schema, nil
}

func (c *Cache) Invalidate(table string) {
	c.tables.Delete(tableListKey)
	if table == "" {
		c.schemas.DeleteAll()
		return
	}
	c.schemas.Delete(table)
}
