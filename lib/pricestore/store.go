package pricestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Kind selects which history series a key belongs to. Cards are keyed by
// their canonical id, dons and sealed products by their catalog name.
type Kind int

const (
	KindCard Kind = iota
	KindDon
	KindSealed
)

func (k Kind) table() string {
	switch k {
	case KindCard:
		return "card_history"
	case KindDon:
		return "don_history"
	case KindSealed:
		return "sealed_history"
	}
	panic(fmt.Sprintf("pricestore: unknown kind %d", int(k)))
}

const (
	DefaultHistoryDays = 365
	MaxHistoryDays     = 2000
)

// Point is one recorded day of pricing. Date is a calendar day in
// time.DateOnly form, which also makes it the natural sort key.
type Point struct {
	Date string  `json:"date"`
	EUR  float64 `json:"eur"`
	USD  float64 `json:"usd"`
}

// Store appends daily price points and reads them back in date order.
// Writes are idempotent per (key, date): re-running a snapshot for the
// same day never duplicates or overwrites what was already recorded.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

func (s Store) Record(ctx context.Context, kind Kind, key, date string, eur, usd float64) error {
	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (key, date, eur, usd) VALUES (?, ?, ?, ?)", kind.table()),
		key, date, eur, usd,
	)
	if err != nil {
		return fmt.Errorf("record %s %s@%s: %w", kind.table(), key, date, err)
	}
	return nil
}

// History returns up to limit of the most recent points for key, oldest
// first. limit <= 0 means DefaultHistoryDays; anything above
// MaxHistoryDays is clamped.
func (s Store) History(ctx context.Context, kind Kind, key string, limit int) ([]Point, error) {
	if limit <= 0 {
		limit = DefaultHistoryDays
	}
	if limit > MaxHistoryDays {
		limit = MaxHistoryDays
	}

	// select newest-first so the LIMIT keeps the most recent window,
	// then reverse into chronological order for the caller
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf("SELECT date, eur, usd FROM %s WHERE key = ? ORDER BY date DESC LIMIT ?", kind.table()),
		key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history %s %s: %w", kind.table(), key, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Date, &p.EUR, &p.USD); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// BaselineAt returns the most recent point recorded on or before cutoff,
// or ok=false when the series doesn't reach back that far.
func (s Store) BaselineAt(ctx context.Context, kind Kind, key, cutoff string) (Point, bool, error) {
	var p Point
	err := s.db.QueryRowContext(
		ctx,
		fmt.Sprintf("SELECT date, eur, usd FROM %s WHERE key = ? AND date <= ? ORDER BY date DESC LIMIT 1", kind.table()),
		key, cutoff,
	).Scan(&p.Date, &p.EUR, &p.USD)
	if err == sql.ErrNoRows {
		return Point{}, false, nil
	}
	if err != nil {
		return Point{}, false, fmt.Errorf("baseline %s %s@%s: %w", kind.table(), key, cutoff, err)
	}
	return p, true, nil
}

// Keys lists every distinct key in a series, sorted. The snapshot CLI
// uses it to report what has been tracked so far.
func (s Store) Keys(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf("SELECT DISTINCT key FROM %s ORDER BY key", kind.table()),
	)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", kind.table(), err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
