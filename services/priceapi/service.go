package priceapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"allblue-backend/lib/cardid"
	"allblue-backend/lib/catalog"
	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/scrapers/limitless"
	"allblue-backend/lib/timezone"
	"allblue-backend/lib/ttlcache"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/priceapi")

const (
	PriceCacheSize = 600
	PriceCacheTTL  = time.Hour * 24

	DefaultTrendWindowDays = 7
)

// Prices is the resolved pricing for one print, plus its trailing-window
// trend against the snapshot ledger.
type Prices struct {
	EUR          float64 `json:"eur"`
	USD          float64 `json:"usd"`
	EURLink      string  `json:"eur_url,omitempty"`
	USDLink      string  `json:"usd_url,omitempty"`
	PctChangeEUR float64 `json:"pct_change_eur"`
	PctChangeUSD float64 `json:"pct_change_usd"`
}

type Options struct {
	Client *limitless.Client
	Store  pricestore.Store

	DonsFile   string
	SealedFile string
	DecksFile  string

	// defaults to DefaultTrendWindowDays
	TrendWindowDays int
	// defaults to timezone.Now; tests inject a fixed clock
	Clock func() time.Time
}

type Service struct {
	client *limitless.Client
	store  pricestore.Store
	loader *catalog.Loader
	cache  *ttlcache.Cache[string, Prices]

	donsFile   string
	sealedFile string
	decksFile  string

	windowDays int
	now        func() time.Time
}

func NewService(opts Options) Service {
	windowDays := opts.TrendWindowDays
	if windowDays == 0 {
		windowDays = DefaultTrendWindowDays
	}
	now := opts.Clock
	if now == nil {
		now = timezone.Now
	}
	return Service{
		client:     opts.Client,
		store:      opts.Store,
		loader:     catalog.NewLoader(),
		cache:      ttlcache.New[string, Prices](PriceCacheSize, PriceCacheTTL, ttlcache.WithClock[string, Prices](now)),
		donsFile:   opts.DonsFile,
		sealedFile: opts.SealedFile,
		decksFile:  opts.DecksFile,
		windowDays: windowDays,
		now:        now,
	}
}

type PriceResult struct {
	CardID string         `json:"card_id"`
	Prices Prices         `json:"prices"`
	Cached bool           `json:"cached"`
	Cache  ttlcache.Stats `json:"cache"`
}

// Price resolves a raw card reference to its current prices. A cache hit
// skips the upstream fetch entirely; a miss fetches the card page,
// resolves the requested print and folds in the trend before caching.
// Normalization failures return cardid.ErrInvalidID wrapped.
func (s Service) Price(ctx context.Context, raw string, explicitVersion *int) (PriceResult, error) {
	ctx, span := tracer.Start(ctx, "Price")
	defer span.End()

	id, err := cardid.Normalize(raw, explicitVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PriceResult{}, err
	}
	key := id.Key()
	span.SetAttributes(attribute.String("card_id", key))

	if prices, ok := s.cache.Get(key); ok {
		return PriceResult{
			CardID: key,
			Prices: prices,
			Cached: true,
			Cache:  s.cache.Stats(),
		}, nil
	}

	rows, err := s.client.FetchPrints(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PriceResult{}, err
	}
	row := limitless.ResolvePrint(rows, id.Version)

	prices := Prices{
		EUR:     row.EUR,
		USD:     row.USD,
		EURLink: row.EURLink,
		USDLink: row.USDLink,
	}
	prices.PctChangeEUR, prices.PctChangeUSD = s.trend(ctx, pricestore.KindCard, key, row.EUR, row.USD)

	s.cache.Set(key, prices)

	return PriceResult{
		CardID: key,
		Prices: prices,
		Cached: false,
		Cache:  s.cache.Stats(),
	}, nil
}

type HistoryResult struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Name    string             `json:"name,omitempty"`
	Count   int                `json:"count"`
	History []pricestore.Point `json:"history"`
}

// History returns the recorded daily prices for a card, oldest first.
// The id is normalized leniently: unknown encodings query whatever key
// they sanitize to and come back with an empty history rather than an
// error.
func (s Service) History(ctx context.Context, raw string, limit int) (HistoryResult, error) {
	ctx, span := tracer.Start(ctx, "History")
	defer span.End()

	key := cardid.NormalizeLenient(raw).Key()
	span.SetAttributes(attribute.String("card_id", key))

	points, err := s.store.History(ctx, pricestore.KindCard, key, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return HistoryResult{}, err
	}

	return HistoryResult{
		Type:    "card",
		ID:      key,
		Count:   len(points),
		History: points,
	}, nil
}

// DonHistory returns recorded prices for a don card by name. A name with
// no direct history falls back to the nearest catalog name, so small
// spelling drift between batch runs doesn't orphan a series.
func (s Service) DonHistory(ctx context.Context, name string, limit int) (HistoryResult, error) {
	return s.namedHistory(ctx, pricestore.KindDon, "don", s.donsFile, name, limit)
}

func (s Service) SealedHistory(ctx context.Context, name string, limit int) (HistoryResult, error) {
	return s.namedHistory(ctx, pricestore.KindSealed, "sealed", s.sealedFile, name, limit)
}

func (s Service) namedHistory(ctx context.Context, kind pricestore.Kind, typ, catalogFile, name string, limit int) (HistoryResult, error) {
	ctx, span := tracer.Start(ctx, "namedHistory")
	defer span.End()
	span.SetAttributes(attribute.String("type", typ), attribute.String("name", name))

	points, err := s.store.History(ctx, kind, name, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return HistoryResult{}, err
	}

	if len(points) == 0 && catalogFile != "" {
		if items, loadErr := s.loader.Load(catalogFile); loadErr == nil {
			if item, ok := catalog.NearestName(items, name); ok && item.Name != name {
				name = item.Name
				points, err = s.store.History(ctx, kind, name, limit)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return HistoryResult{}, err
				}
			}
		}
	}

	return HistoryResult{
		Type:    typ,
		Name:    name,
		Count:   len(points),
		History: points,
	}, nil
}

type CatalogResult struct {
	Type      string         `json:"type"`
	Count     int            `json:"count"`
	Cached    bool           `json:"cached"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	Items     []catalog.Item `json:"items"`
}

// Dons lists the current don card catalog with prices.
func (s Service) Dons(ctx context.Context) (CatalogResult, error) {
	return s.catalogItems(ctx, "don", s.donsFile)
}

// Sealed lists the current sealed product catalog with prices.
func (s Service) Sealed(ctx context.Context) (CatalogResult, error) {
	return s.catalogItems(ctx, "sealed", s.sealedFile)
}

func (s Service) catalogItems(ctx context.Context, typ, path string) (CatalogResult, error) {
	_, span := tracer.Start(ctx, "catalogItems")
	defer span.End()
	span.SetAttributes(attribute.String("type", typ))

	items, err := s.loader.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// a catalog that hasn't been scraped yet is empty, not broken
			return CatalogResult{Type: typ, Cached: true, Items: []catalog.Item{}}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CatalogResult{}, err
	}

	res := CatalogResult{
		Type:   typ,
		Count:  len(items),
		Cached: true,
		Items:  items,
	}
	if info, err := os.Stat(path); err == nil {
		res.UpdatedAt = info.ModTime().UTC().Format(time.RFC3339)
	}
	return res, nil
}

var ErrNoDecks = fmt.Errorf("deck file not found")

// Decks serves the deck list file verbatim; its shape belongs to the
// pipeline that writes it.
func (s Service) Decks(ctx context.Context) (json.RawMessage, error) {
	_, span := tracer.Start(ctx, "Decks")
	defer span.End()

	if s.decksFile == "" {
		return nil, ErrNoDecks
	}
	raw, err := catalog.LoadRaw(s.decksFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoDecks
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return raw, nil
}
