// Package menu is the read side of the restaurant menu, backed by SQLite.
package menu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"restaurant-agent/internal/domain"
)

// DefaultSearchLimit caps search results when the caller passes no limit.
const DefaultSearchLimit = 10

var ErrNotFound = errors.New("menu: item not found")

const schema = `
CREATE TABLE IF NOT EXISTS menu_items (
	id          INTEGER PRIMARY KEY,
	category    TEXT    NOT NULL,
	name        TEXT    NOT NULL,
	description TEXT,
	allergens   TEXT,
	price       REAL    NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_menu_items_category ON menu_items(category);
`

// Open opens the SQLite database at path with WAL and a busy timeout applied
// to every pooled connection, and ensures the schema exists.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("menu: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("menu: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("menu: migrate: %w", err)
	}
	return db, nil
}

// Catalog answers menu lookups for the dialogue strategies.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) (*Catalog, error) {
	if db == nil {
		return nil, errors.New("menu: db must not be nil")
	}
	return &Catalog{db: db}, nil
}

// Search returns active items whose name contains query, case-insensitively,
// in id order. An empty query matches every active item.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]domain.MenuItem, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	q := `SELECT id, name, price, category FROM menu_items WHERE active = 1`
	args := []any{}
	if query != "" {
		q += ` AND lower(name) LIKE '%' || lower(?) || '%' ESCAPE '\'`
		args = append(args, escapeLike(query))
	}
	q += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("menu: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]domain.MenuItem, 0, limit)
	for rows.Next() {
		var it domain.MenuItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Category); err != nil {
			return nil, fmt.Errorf("menu: search scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("menu: search rows: %w", err)
	}
	return items, nil
}

// Get returns the detail of one active item.
func (c *Catalog) Get(ctx context.Context, id int64) (domain.MenuItemDetail, error) {
	var (
		d         domain.MenuItemDetail
		desc, alg sql.NullString
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, description, allergens, price FROM menu_items WHERE id = ? AND active = 1`, id,
	).Scan(&d.ID, &d.Name, &desc, &alg, &d.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MenuItemDetail{}, ErrNotFound
	}
	if err != nil {
		return domain.MenuItemDetail{}, fmt.Errorf("menu: get %d: %w", id, err)
	}
	d.Description = desc.String
	d.Allergens = alg.String
	return d, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
