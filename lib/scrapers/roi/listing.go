package roi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"roiassist-backend/lib/htmlutil"
	"roiassist-backend/lib/textutil"
)

const (
	DefaultLevel    = "Федеральный"
	DefaultCategory = "Не указана"

	levelPrefix   = "Уровень инициативы:"
	nextPageLabel = "Следующая"
)

// Candidate is an initiative extracted from a listing page only, before
// detail enrichment.
type Candidate struct {
	ExternalId  string
	Title       string
	Description string
	Url         string
	Category    string
	Level       string
	Votes       string
	AntiVotes   string
	CreatedDate string
}

type ListingPage struct {
	Candidates []Candidate
	// empty when the listing has no further pages, which is the normal
	// end of a traversal
	NextPageUrl string
}

// Initiatives walks the paginated listing starting at startUrl, visiting
// at most maxPages pages with the politeness delay between fetches.
// Traversal also stops when there is no next page or when the next page
// resolves back to the current one.
func (c *Client) Initiatives(ctx context.Context, startUrl string, maxPages int) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "client:Initiatives")
	defer span.End()

	if startUrl == "" {
		startUrl = DefaultListingUrl
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	span.SetAttributes(
		attribute.String("start_url", startUrl),
		attribute.Int("max_pages", maxPages),
	)

	var all []Candidate
	currentUrl := startUrl

	for page := 1; page <= maxPages && currentUrl != ""; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		slog.InfoContext(ctx, "fetching listing page", "page", page, "url", currentUrl)
		doc, err := c.FetchDocument(ctx, currentUrl)
		if err != nil {
			if page == 1 {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to fetch first listing page")
				return nil, err
			}
			slog.WarnContext(ctx, "failed to fetch listing page, stopping traversal", "page", page, "err", err)
			break
		}

		listing := c.ParseListing(ctx, doc)
		all = append(all, listing.Candidates...)
		slog.InfoContext(ctx, "listing page parsed", "page", page, "candidates", len(listing.Candidates))

		if listing.NextPageUrl == "" {
			slog.InfoContext(ctx, "end of pagination reached", "pages", page)
			break
		}
		if listing.NextPageUrl == currentUrl {
			slog.WarnContext(ctx, "next page resolves to the current page, stopping traversal", "url", currentUrl)
			break
		}
		currentUrl = listing.NextPageUrl

		if page < maxPages {
			if err := c.throttle(ctx, c.pageDelay); err != nil {
				return all, err
			}
		}
	}

	span.SetAttributes(attribute.Int("candidates", len(all)))
	return all, nil
}

// ParseListing extracts the candidate records and the next page link
// from a parsed listing page. Malformed candidate blocks are skipped,
// never fatal.
func (c *Client) ParseListing(ctx context.Context, doc *goquery.Document) ListingPage {
	// two historical layout variants, then the generic item marker
	blocks := htmlutil.FirstMatch(doc, "div.col-1, div.col-2", "div.item")

	var candidates []Candidate
	if blocks != nil {
		blocks.Each(func(i int, block *goquery.Selection) {
			candidate, err := c.parseListingBlock(block)
			if err != nil {
				slog.DebugContext(ctx, "skipping candidate block", "index", i, "err", err)
				return
			}
			candidates = append(candidates, candidate)
		})
	}

	return ListingPage{
		Candidates:  candidates,
		NextPageUrl: c.nextPageUrl(doc),
	}
}

func (c *Client) parseListingBlock(block *goquery.Selection) (Candidate, error) {
	anchors := htmlutil.GetAnchors(block.Find("div.link a"))
	if len(anchors) == 0 {
		return Candidate{}, errors.New("candidate block has no anchor")
	}
	link := anchors[0]
	absolute, err := c.BaseUrl.Parse(link.Href)
	if err != nil {
		return Candidate{}, fmt.Errorf("resolve candidate url %q: %w", link.Href, err)
	}

	title := link.Name
	if title == "" {
		return Candidate{}, errors.New("candidate block has an empty title")
	}

	votes := "0"
	if b := block.Find("div.hour b").First(); b.Length() > 0 {
		if digits := textutil.Digits(b.Text()); digits != "" {
			votes = digits
		}
	}

	level := DefaultLevel
	if jurisdiction := block.Find("div.jurisdiction").First(); jurisdiction.Length() > 0 {
		text := textutil.NormalizeSpace(jurisdiction.Text())
		text = strings.TrimSpace(strings.TrimPrefix(text, levelPrefix))
		if text != "" {
			level = text
		}
	}

	pageUrl := absolute.String()
	return Candidate{
		ExternalId:  ResolveExternalID(pageUrl),
		Title:       title,
		Description: fmt.Sprintf("%s. Количество голосов: %s", title, votes),
		Url:         pageUrl,
		Category:    DefaultCategory,
		Level:       level,
		Votes:       votes,
		AntiVotes:   "0",
		CreatedDate: time.Now().Format(time.DateOnly),
	}, nil
}

func (c *Client) nextPageUrl(doc *goquery.Document) string {
	pagination := htmlutil.FirstMatch(
		doc,
		"div.pagination",
		"div.yiiPager",
		"div[class*='pagination'], div[class*='yiiPager']",
	)
	if pagination == nil {
		return ""
	}

	next := pagination.Find("a.next").First()
	if next.Length() == 0 {
		pagination.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if strings.Contains(a.Text(), nextPageLabel) {
				next = a
				return false
			}
			return true
		})
	}
	if next.Length() == 0 {
		return ""
	}

	href, ok := next.Attr("href")
	if !ok || href == "" {
		return ""
	}
	absolute, err := c.BaseUrl.Parse(href)
	if err != nil {
		return ""
	}
	return absolute.String()
}
