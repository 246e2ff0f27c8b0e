package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"allblue-backend/lib/textutil"

	"github.com/antzucaro/matchr"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Item is one priced catalog entry, either a don card or a sealed
// product. Source names the scraper that produced the price.
type Item struct {
	Name     string  `json:"name"`
	UsdPrice float64 `json:"usd_price"`
	EurPrice float64 `json:"eur_price"`
	ImageUrl string  `json:"image_url"`
	Source   string  `json:"source"`
}

// Loader reads catalog JSON files written by the scraper CLIs. Parsed
// files are cached keyed by path and mtime, so an overwritten file is
// picked up on the next read while repeated reads of an unchanged file
// stay off the disk.
type Loader struct {
	cache *expirable.LRU[string, []Item]
}

const (
	cacheSize = 12
	cacheTTL  = time.Minute * 10
)

func NewLoader() *Loader {
	return &Loader{
		cache: expirable.NewLRU[string, []Item](cacheSize, nil, cacheTTL),
	}
}

func (l *Loader) Load(path string) ([]Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog %s: %w", path, err)
	}
	key := fmt.Sprintf("%s::%d", path, info.ModTime().UnixNano())

	if items, ok := l.cache.Get(key); ok {
		return items, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	items, err := decodeItems(data)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	l.cache.Add(key, items)
	return items, nil
}

// LoadRaw reads a JSON file and returns it verbatim after a validity
// check. Deck lists are served as-is, their shape is owned by whatever
// wrote them.
func LoadRaw(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("read %s: not valid json", path)
	}
	return json.RawMessage(data), nil
}

// scraper output has drifted over time: prices appear under usd,
// usd_price or price_usd depending on which version wrote the file
type rawItem struct {
	Name     string   `json:"name"`
	Usd      *float64 `json:"usd"`
	UsdPrice *float64 `json:"usd_price"`
	PriceUsd *float64 `json:"price_usd"`
	Eur      *float64 `json:"eur"`
	EurPrice *float64 `json:"eur_price"`
	PriceEur *float64 `json:"price_eur"`
	Image    string   `json:"image"`
	ImageUrl string   `json:"image_url"`
	Source   string   `json:"source"`
}

func firstPrice(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

func (r rawItem) item() Item {
	image := r.ImageUrl
	if image == "" {
		image = r.Image
	}
	return Item{
		Name:     r.Name,
		UsdPrice: firstPrice(r.UsdPrice, r.Usd, r.PriceUsd),
		EurPrice: firstPrice(r.EurPrice, r.Eur, r.PriceEur),
		ImageUrl: image,
		Source:   r.Source,
	}
}

// decodeItems accepts both catalog shapes: a plain list of items, or a
// map keyed by "source::Name". Map order is not stable in JSON, so the
// map form is sorted by name to keep responses deterministic.
func decodeItems(data []byte) ([]Item, error) {
	var list []rawItem
	if err := json.Unmarshal(data, &list); err == nil {
		items := make([]Item, len(list))
		for i, r := range list {
			items[i] = r.item()
		}
		return items, nil
	}

	var byKey map[string]rawItem
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(byKey))
	for key, r := range byKey {
		item := r.item()
		source, name := splitKey(key)
		if item.Name == "" {
			item.Name = name
		}
		if item.Source == "" {
			item.Source = source
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func splitKey(key string) (source, name string) {
	source, name, found := strings.Cut(key, "::")
	if !found {
		return "", key
	}
	return source, name
}

const nearestMaxDistance = 3

// NearestName finds the item whose name best matches query: exact
// case-insensitive match first, then the closest name within a small
// edit distance so "Don Card red" still resolves to "Don!! Card (Red)".
func NearestName(items []Item, query string) (Item, bool) {
	lowered := strings.ToLower(strings.TrimSpace(query))

	for _, item := range items {
		if strings.ToLower(item.Name) == lowered {
			return item, true
		}
	}

	// normalized names keep punctuation-only differences from counting
	// against the edit distance
	best := -1
	bestDistance := nearestMaxDistance + 1
	normalized := textutil.NormalizeName(query)
	for i, item := range items {
		d := matchr.Levenshtein(textutil.NormalizeName(item.Name), normalized)
		if d < bestDistance {
			bestDistance = d
			best = i
		}
	}
	if best < 0 {
		return Item{}, false
	}
	return items[best], true
}
