package collectr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/collectr")

const (
	DefaultDonsURL   = "https://app.getcollectr.com/?sortType=price&sortOrder=DESC&cardType=don&category=68"
	DefaultSealedURL = "https://app.getcollectr.com/?sortType=price&sortOrder=DESC&cardType=sealed&category=68"

	// the listing only shows USD; EUR is derived at a fixed rate
	UsdToEurRate = 0.75
)

// Entry is one scraped listing row before catalog encoding.
type Entry struct {
	Name     string
	USD      float64
	EUR      float64
	ImageUrl string
}

type ScrapeOptions struct {
	URL string
	// overall deadline for the headless session, defaults to 3m
	Timeout time.Duration
}

// rawEntry mirrors what the in-page extraction script returns
type rawEntry struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Image string `json:"image"`
}

const extractScript = `Array.from(document.querySelectorAll("li")).map(li => {
	const name = li.querySelector("span.line-clamp-2");
	const spans = Array.from(li.querySelectorAll("span"));
	const price = spans.find(s => s.innerText.includes("$") && /\d/.test(s.innerText));
	const img = li.querySelector("img");
	return {
		name: name ? name.innerText.trim() : "",
		price: price ? price.innerText.trim() : "",
		image: img ? img.src : "",
	};
})`

// Scrape drives a headless browser over an infinite-scroll listing page
// and returns every priced item it finds. The page keeps loading rows as
// it scrolls, so scrolling continues until the row count holds still for
// three rounds.
func Scrape(ctx context.Context, opts ScrapeOptions) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Minute * 3
	}
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1440, 900),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible("li div.flex", chromedp.ByQuery),
		chromedp.Sleep(time.Second*2),
	)
	if err != nil {
		return nil, fmt.Errorf("open listing %s: %w", opts.URL, err)
	}

	prev := -1
	sameRounds := 0
	for sameRounds < 3 {
		var count int
		err := chromedp.Run(browserCtx,
			chromedp.Evaluate(`document.querySelectorAll("li").length`, &count),
		)
		if err != nil {
			return nil, fmt.Errorf("count listing rows: %w", err)
		}

		if count == prev {
			sameRounds++
		} else {
			sameRounds = 0
		}
		prev = count

		err = chromedp.Run(browserCtx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(time.Second*2),
		)
		if err != nil {
			return nil, fmt.Errorf("scroll listing: %w", err)
		}
	}

	var raw []rawEntry
	err = chromedp.Run(browserCtx, chromedp.Evaluate(extractScript, &raw))
	if err != nil {
		return nil, fmt.Errorf("extract listing rows: %w", err)
	}

	return collectEntries(raw), nil
}

// collectEntries turns raw extraction rows into priced entries, dropping
// anything without a name or a parseable price.
func collectEntries(raw []rawEntry) []Entry {
	var entries []Entry
	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		usd := ParseUSD(r.Price)
		if usd == 0 {
			continue
		}
		entries = append(entries, Entry{
			Name:     r.Name,
			USD:      usd,
			EUR:      UsdToEur(usd),
			ImageUrl: r.Image,
		})
	}
	return entries
}

// ParseUSD parses listing price text like "$1,299.99". Unparsable text
// yields 0.
func ParseUSD(text string) float64 {
	cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(text))
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

func UsdToEur(usd float64) float64 {
	return math.Round(usd*UsdToEurRate*100) / 100
}

type catalogEntry struct {
	Usd      float64 `json:"usd"`
	Eur      float64 `json:"eur"`
	ImageUrl string  `json:"image_url"`
	Source   string  `json:"source"`
}

// EncodeCatalog renders entries in the keyed-map catalog form,
// "<prefix>::<name>" per item.
func EncodeCatalog(prefix string, entries []Entry) ([]byte, error) {
	out := make(map[string]catalogEntry, len(entries))
	for _, e := range entries {
		out[fmt.Sprintf("%s::%s", prefix, e.Name)] = catalogEntry{
			Usd:      e.USD,
			Eur:      e.EUR,
			ImageUrl: e.ImageUrl,
			Source:   "collectr",
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

var ErrEmptyScrape = fmt.Errorf("collectr: refusing to save an empty scrape")

// SaveCatalog writes entries to path in catalog form. An empty scrape is
// rejected so a failed run can never wipe the previous good file.
func SaveCatalog(path, prefix string, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyScrape
	}
	data, err := EncodeCatalog(prefix, entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save catalog %s: %w", path, err)
	}
	return nil
}
