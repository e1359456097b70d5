package cache

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"price-compare/pkg/models"
)

// Cache keeps the product list of recent searches so repeated queries do not
// hit the storefronts again. Entries older than ttl are ignored.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS searches (
			platform TEXT NOT NULL,
			query TEXT NOT NULL,
			max_pages INTEGER NOT NULL,
			data TEXT NOT NULL,
			collected_at DATETIME NOT NULL,
			PRIMARY KEY (platform, query, max_pages)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, ttl: ttl}, nil
}

func queryKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func pagesKey(maxPages int) int {
	if maxPages < 0 {
		return 0
	}
	return maxPages
}

func (c *Cache) Get(platform models.Platform, query string, maxPages int) ([]models.Product, bool) {
	var data string
	var collectedAt time.Time

	err := c.db.QueryRow(
		`SELECT data, collected_at FROM searches WHERE platform = ? AND query = ? AND max_pages = ?`,
		platform.Key(), queryKey(query), pagesKey(maxPages),
	).Scan(&data, &collectedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			zap.L().Warn("cache read failed", zap.String("platform", platform.Key()), zap.Error(err))
		}
		return nil, false
	}

	if time.Since(collectedAt) > c.ttl {
		return nil, false
	}

	var products []models.Product
	if err := json.Unmarshal([]byte(data), &products); err != nil {
		zap.L().Warn("cache entry unreadable",
			zap.String("platform", platform.Key()), zap.String("query", query), zap.Error(err))
		return nil, false
	}

	return products, true
}

func (c *Cache) Set(platform models.Platform, query string, maxPages int, products []models.Product, collectedAt time.Time) {
	data, err := json.Marshal(products)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("platform", platform.Key()), zap.Error(err))
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO searches (platform, query, max_pages, data, collected_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(platform, query, max_pages)
		 DO UPDATE SET data = excluded.data, collected_at = excluded.collected_at`,
		platform.Key(), queryKey(query), pagesKey(maxPages), string(data), collectedAt.UTC(),
	)
	if err != nil {
		zap.L().Warn("cache write failed",
			zap.String("platform", platform.Key()), zap.String("query", query), zap.Error(err))
	}
}

// Prune removes entries older than the TTL and reports how many were deleted.
func (c *Cache) Prune() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM searches WHERE collected_at < ?`, time.Now().Add(-c.ttl).UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
