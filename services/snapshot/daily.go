package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"sync"

	"allblue-backend/lib/cardid"
	"allblue-backend/lib/catalog"
	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/scrapers/limitless"
	"allblue-backend/lib/timezone"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("services/snapshot")

const DefaultConcurrency = 4

var baseCodeRegex = regexp.MustCompile(`^[A-Z]{2,4}[0-9]{2}-[0-9]{3}$`)

// LoadBaseCodes reads the master card list (a json array of objects with
// a "code" field), keeps well-formed base codes and returns them sorted
// and deduplicated.
func LoadBaseCodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card list %s: %w", path, err)
	}

	var cards []struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("decode card list %s: %w", path, err)
	}

	seen := map[string]bool{}
	var codes []string
	for _, c := range cards {
		if c.Code == "" || seen[c.Code] || !baseCodeRegex.MatchString(c.Code) {
			continue
		}
		seen[c.Code] = true
		codes = append(codes, c.Code)
	}
	sort.Strings(codes)
	return codes, nil
}

type Runner struct {
	client      *limitless.Client
	store       pricestore.Store
	concurrency int64
}

func NewRunner(client *limitless.Client, store pricestore.Store, concurrency int64) Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return Runner{
		client:      client,
		store:       store,
		concurrency: concurrency,
	}
}

type Report struct {
	Date     string
	Cards    int
	Recorded int
	Failed   []string
}

// Run snapshots every base code for today's date. One fetch per base
// yields the whole prints table, and each non-zero row is recorded under
// its versioned key. Individual failures are collected and reported, a
// bad card never aborts the batch; re-running on the same day is a no-op
// thanks to the ledger's idempotent insert.
func (r Runner) Run(ctx context.Context, baseCodes []string) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	today := timezone.Today()

	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup

	var mu sync.Mutex
	recorded := 0
	var failed []string

	fail := func(code string, err error) {
		slog.WarnContext(ctx, "failed to snapshot card", "code", code, "err", err)
		mu.Lock()
		failed = append(failed, code)
		mu.Unlock()
	}

	for _, code := range baseCodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			// context cancelled; report what finished so far
			wg.Wait()
			return Report{Date: today, Cards: len(baseCodes), Recorded: recorded, Failed: failed}, err
		}

		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			defer sem.Release(1)

			n, err := r.snapshotCard(ctx, code, today)
			if err != nil {
				fail(code, err)
				return
			}
			mu.Lock()
			recorded += n
			mu.Unlock()
		}(code)
	}
	wg.Wait()

	report := Report{
		Date:     today,
		Cards:    len(baseCodes),
		Recorded: recorded,
		Failed:   failed,
	}
	slog.InfoContext(ctx, "daily card snapshot completed",
		"date", report.Date,
		"cards", report.Cards,
		"recorded", report.Recorded,
		"failed", len(report.Failed),
	)
	return report, nil
}

func (r Runner) snapshotCard(ctx context.Context, code, date string) (int, error) {
	rows, err := r.client.FetchPrints(ctx, cardid.CardID{Base: code})
	if err != nil {
		return 0, err
	}

	recorded := 0
	for version, row := range rows {
		if row.EUR == 0 && row.USD == 0 {
			continue
		}
		key := cardid.CardID{Base: code, Version: version}.Key()
		if err := r.store.Record(ctx, pricestore.KindCard, key, date, row.EUR, row.USD); err != nil {
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}

// IngestCatalog records today's prices for every named item in a scraped
// catalog file. A missing file is skipped with a warning: the catalog
// scrapers run on their own schedule and may not have produced output
// yet.
func (r Runner) IngestCatalog(ctx context.Context, kind pricestore.Kind, path string) (int, error) {
	ctx, span := tracer.Start(ctx, "IngestCatalog")
	defer span.End()

	items, err := catalog.NewLoader().Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "catalog snapshot missing, skipping", "path", path)
			return 0, nil
		}
		return 0, err
	}

	today := timezone.Today()
	recorded := 0
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		if err := r.store.Record(ctx, kind, item.Name, today, item.EurPrice, item.UsdPrice); err != nil {
			return recorded, err
		}
		recorded++
	}
	return recorded, nil
}
