package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/scrapers/limitless"
	"allblue-backend/lib/testutil"
	"allblue-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func TestLoadBaseCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "all_cards.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"code": "OP09-118", "name": "Shanks"},
		{"code": "OP01-001"},
		{"code": "OP01-001"},
		{"code": "ST13-003"},
		{"code": "P-001"},
		{"code": "not a code"},
		{"name": "missing code"}
	]`), 0644))

	codes, err := LoadBaseCodes(path)
	require.NoError(t, err)
	// malformed and promo-grammar codes are filtered, duplicates collapse
	require.Equal(t, []string{"OP01-001", "OP09-118", "ST13-003"}, codes)

	_, err = LoadBaseCodes(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func cardPage(rows ...[2]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="prints-table"><tr><th>Print</th><th>USD</th><th>EUR</th></tr>`)
	for _, r := range rows {
		fmt.Fprintf(&b,
			`<tr><td><a class="card-price usd" href="u">%s</a></td><td><a class="card-price eur" href="e">%s</a></td></tr>`,
			r[0], r[1])
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

func setupRunner(t *testing.T, handler http.HandlerFunc) (Runner, pricestore.Store, context.Context) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "snapshot",
		DbSchema: pricestore.Schema,
	})
	t.Cleanup(cleanup)

	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	t.Cleanup(cancel)

	store := pricestore.NewStore(res.DB)
	client := limitless.NewClient(limitless.ClientOptions{BaseURL: upstream.URL})
	return NewRunner(client, store, 2), store, ctx
}

func TestRunRecordsEveryVersion(t *testing.T) {
	runner, store, ctx := setupRunner(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "OP01-001"):
			// second row has no prices and must be skipped
			w.Write([]byte(cardPage([2]string{"$12.00", "10,00 €"}, [2]string{"", ""}, [2]string{"$99.00", "80,00 €"})))
		case strings.Contains(r.URL.Path, "OP01-002"):
			w.Write([]byte(cardPage([2]string{"$3.00", "2,50 €"})))
		default:
			http.NotFound(w, r)
		}
	})

	report, err := runner.Run(ctx, []string{"OP01-001", "OP01-002"})
	require.NoError(t, err)
	require.Equal(t, 2, report.Cards)
	require.Equal(t, 3, report.Recorded)
	require.Empty(t, report.Failed)
	require.Equal(t, timezone.Today(), report.Date)

	today := timezone.Today()
	points, err := store.History(ctx, pricestore.KindCard, "OP01-001", 0)
	require.NoError(t, err)
	require.Equal(t, []pricestore.Point{{Date: today, EUR: 10, USD: 12}}, points)

	// the zero row kept its position: the priced alternate print is v=2
	points, err = store.History(ctx, pricestore.KindCard, "OP01-001v=2", 0)
	require.NoError(t, err)
	require.Equal(t, []pricestore.Point{{Date: today, EUR: 80, USD: 99}}, points)

	points, err = store.History(ctx, pricestore.KindCard, "OP01-001v=1", 0)
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestRunCollectsFailures(t *testing.T) {
	runner, store, ctx := setupRunner(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "OP01-666") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(cardPage([2]string{"$1.00", "0,90 €"})))
	})

	report, err := runner.Run(ctx, []string{"OP01-001", "OP01-666", "OP01-003"})
	require.NoError(t, err)
	require.Equal(t, 2, report.Recorded)
	require.Equal(t, []string{"OP01-666"}, report.Failed)

	// the good cards still landed
	points, err := store.History(ctx, pricestore.KindCard, "OP01-003", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestRunIdempotentAcrossReruns(t *testing.T) {
	runner, store, ctx := setupRunner(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cardPage([2]string{"$1.00", "0,90 €"})))
	})

	_, err := runner.Run(ctx, []string{"OP01-001"})
	require.NoError(t, err)
	_, err = runner.Run(ctx, []string{"OP01-001"})
	require.NoError(t, err)

	points, err := store.History(ctx, pricestore.KindCard, "OP01-001", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestRunBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64

	runner, _, ctx := setupRunner(t, func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond * 20)
		w.Write([]byte(cardPage([2]string{"$1.00", "0,90 €"})))
	})

	codes := make([]string, 8)
	for i := range codes {
		codes[i] = fmt.Sprintf("OP01-%03d", i+1)
	}
	_, err := runner.Run(ctx, codes)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int64(2))
}

func TestIngestCatalog(t *testing.T) {
	runner, store, ctx := setupRunner(t, http.NotFound)

	path := filepath.Join(t.TempDir(), "dons_collectr.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"don::Don!! Card (Red)": {"usd": 4.5, "eur": 3.38},
		"don::Don!! Card (Blue)": {"usd": 2.0, "eur": 1.5}
	}`), 0644))

	n, err := runner.IngestCatalog(ctx, pricestore.KindDon, path)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	points, err := store.History(ctx, pricestore.KindDon, "Don!! Card (Red)", 0)
	require.NoError(t, err)
	require.Equal(t, []pricestore.Point{{Date: timezone.Today(), EUR: 3.38, USD: 4.5}}, points)

	// a catalog that was never scraped is a skip, not a failure
	n, err = runner.IngestCatalog(ctx, pricestore.KindSealed, filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Zero(t, n)
}
