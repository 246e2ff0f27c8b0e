package limitless

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"allblue-backend/lib/cardid"
	"allblue-backend/lib/restyutil"
	"allblue-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/limitless")

const DefaultBaseURL = "https://onepiece.limitlesstcg.com"

// Client fetches card pages from the upstream listing site. It is safe
// for concurrent use; every fetch is independent and side-effect free, so
// duplicate concurrent fetches for the same card are merely redundant,
// never wrong.
type Client struct {
	http *resty.Client
}

type ClientOptions struct {
	// defaults to DefaultBaseURL
	BaseURL string
	// number of retry attempts after a failed fetch; 0 disables retries.
	// the live query path runs without retries, the daily batch retries a
	// few times with a fixed wait so one flaky page doesn't lose a day of
	// history
	Retries int
	// fixed wait between retry attempts, defaults to 2s when Retries > 0
	RetryWait time.Duration
	// when set, every fetched page is dumped into this directory for
	// selector debugging
	DebugDir string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("user-agent", "AllBluePriceAPI/1.0 (+https://example.invalid)")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	// a stalled upstream page must not hang a request or the batch:
	// bounded connect and overall read timeouts on every fetch
	client.SetTransport(&http.Transport{
		DialContext: (&net.Dialer{
			Timeout: time.Second * 5,
		}).DialContext,
	})
	client.SetTimeout(time.Second * 20)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	if opts.Retries > 0 {
		wait := opts.RetryWait
		if wait == 0 {
			wait = time.Second * 2
		}
		client.SetRetryCount(opts.Retries)
		client.SetRetryWaitTime(wait)
		client.SetRetryMaxWaitTime(wait)
		client.AddRetryCondition(func(res *resty.Response, err error) bool {
			return err != nil || res.StatusCode() >= 500
		})
	}

	telemetry.InstrumentResty(client, "scrapers/limitless/http")
	if opts.DebugDir != "" {
		restyutil.InstrumentClient(client, restyutil.NewFilesystemOutput(opts.DebugDir))
	}

	return &Client{http: client}
}

// FetchPrints downloads the card page for id and extracts its prints
// table. An empty result with a nil error means the page exists but
// carries no pricing.
func (c *Client) FetchPrints(ctx context.Context, id cardid.CardID) ([]PrintRow, error) {
	ctx, span := tracer.Start(ctx, "FetchPrints")
	defer span.End()

	endpoint := "/cards/" + id.Base
	if id.Version > 0 {
		endpoint = fmt.Sprintf("%s?v=%d", endpoint, id.Version)
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch card page %s: %w", id.Key(), err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetch card page %s: unexpected status %d", id.Key(), res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse card page %s: %w", id.Key(), err)
	}

	return ExtractPrints(doc), nil
}
