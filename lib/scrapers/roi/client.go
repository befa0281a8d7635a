package roi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-resty/resty/v2"

	"roiassist-backend/lib/restyutil"
	"roiassist-backend/lib/telemetry"
)

const (
	DefaultBaseUrl    = "https://www.roi.ru"
	DefaultListingUrl = "https://www.roi.ru/poll/last/?level=1"

	// minimum pause between successive listing page fetches. this is a
	// politeness contract with the source, not a tunable for speed.
	DefaultPageDelay = time.Second * 2
)

type FetchError struct {
	Url        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Url, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s", e.Url, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type ClientOptions struct {
	// origin used to resolve relative hrefs, defaults to the roi.ru origin
	BaseUrl string
	// overrides DefaultPageDelay, negative disables the delay entirely
	PageDelay time.Duration
	// optional fetched-page cache, nil disables caching
	Cache *badger.DB
	// optional sink for full http transcripts, nil disables it
	DebugOutput restyutil.InstrumentOutput
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	pageDelay time.Duration
	cache     pageCache
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	client.SetHeader("accept-language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	client.SetHeader("upgrade-insecure-requests", "1")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(time.Second * 5)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		return err != nil ||
			res.StatusCode() >= http.StatusInternalServerError ||
			res.StatusCode() == http.StatusTooManyRequests
	})

	telemetry.InstrumentResty(client, "scrapers/roi/http")
	restyutil.InstrumentClient(client, opts.DebugOutput)

	pageDelay := opts.PageDelay
	if pageDelay == 0 {
		pageDelay = DefaultPageDelay
	}

	return &Client{
		BaseUrl:   baseUrl,
		Http:      client,
		pageDelay: pageDelay,
		cache:     pageCache{db: opts.Cache},
	}, nil
}

// FetchDocument retrieves pageUrl and parses it into a node tree. the
// page cache, when configured, is consulted first.
func (c *Client) FetchDocument(ctx context.Context, pageUrl string) (*goquery.Document, error) {
	if contents, err := c.cache.get(ctx, pageUrl); err == nil {
		return goquery.NewDocumentFromReader(bytes.NewBuffer(contents))
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(pageUrl)
	if err != nil {
		return nil, &FetchError{Url: pageUrl, Err: err}
	}
	if res.IsError() {
		return nil, &FetchError{Url: pageUrl, StatusCode: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageUrl, err)
	}

	c.cache.set(ctx, pageUrl, res.Body())
	return doc, nil
}

func (c *Client) throttle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
