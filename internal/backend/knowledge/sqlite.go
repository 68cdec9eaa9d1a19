package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps menu context chunks in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and creates the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS menu_context (
			item_id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL,
			price TEXT NOT NULL,
			content_chunk TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_menu_context_category ON menu_context(category)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Seed inserts items, replacing entries with the same name.
func (s *SQLiteStore) Seed(ctx context.Context, items []MenuItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO menu_context (name, category, price, content_chunk)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			price = excluded.price,
			content_chunk = excluded.content_chunk`)
	if err != nil {
		return fmt.Errorf("prepare seed: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.Name, item.Category, item.Price, item.Chunk()); err != nil {
			return fmt.Errorf("seed %q: %w", item.Name, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM menu_context`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count menu context: %w", err)
	}
	return n, nil
}

// FindContext returns up to limit chunks that share words with question,
// best match first, joined by newlines. It returns "" when nothing matches.
func (s *SQLiteStore) FindContext(ctx context.Context, question string, limit int) (string, error) {
	terms := keywords(question)
	if len(terms) == 0 || limit <= 0 {
		return "", nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT item_id, content_chunk FROM menu_context ORDER BY item_id`)
	if err != nil {
		return "", fmt.Errorf("query menu context: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id    int64
		chunk string
		score int
	}
	var matches []scored
	for rows.Next() {
		var c scored
		if err := rows.Scan(&c.id, &c.chunk); err != nil {
			return "", fmt.Errorf("scan menu context: %w", err)
		}
		words := keywords(c.chunk)
		for t := range terms {
			if _, ok := words[t]; ok {
				c.score++
			}
		}
		if c.score > 0 {
			matches = append(matches, c)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate menu context: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	chunks := make([]string, len(matches))
	for i, m := range matches {
		chunks[i] = m.chunk
	}
	return strings.Join(chunks, "\n"), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "can": {}, "do": {}, "doe": {},
	"for": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {},
	"much": {}, "my": {}, "of": {}, "on": {}, "or": {}, "some": {}, "the": {}, "there": {},
	"thi": {}, "to": {}, "what": {}, "which": {}, "with": {}, "you": {}, "your": {},
	"name": {}, "category": {}, "price": {}, "description": {}, "served": {},
}

// keywords lowercases text, splits it on non-alphanumerics, drops a plural
// "s" and removes stopwords.
func keywords(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") {
			f = strings.TrimSuffix(f, "s")
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}
