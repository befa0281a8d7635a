package roi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "embed"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"roiassist-backend/lib/telemetry"
)

//go:embed testdata/listing.html
var listingHtml []byte

//go:embed testdata/listing_items.html
var listingItemsHtml []byte

func newTestClient(t testing.TB, baseUrl string) *Client {
	client, err := NewClient(ClientOptions{
		BaseUrl:   baseUrl,
		PageDelay: -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func parseFixture(t testing.TB, fixture []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(fixture))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestParseListing(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/roi")
	defer cleanup()

	client := newTestClient(t, "")
	listing := client.ParseListing(context.Background(), parseFixture(t, listingHtml))

	// the block without an anchor is skipped, not fatal
	require.Len(t, listing.Candidates, 2)

	first := listing.Candidates[0]
	require.Equal(t, "roi_134431", first.ExternalId)
	require.Equal(t, "Отменить транспортный налог для многодетных семей", first.Title)
	require.Equal(t, "https://www.roi.ru/134431/", first.Url)
	require.Equal(t, "10543", first.Votes)
	require.Equal(t, "0", first.AntiVotes)
	require.Equal(t, "Федеральный", first.Level)
	require.Equal(t, DefaultCategory, first.Category)
	require.Contains(t, first.Description, first.Title)
	require.NotEmpty(t, first.CreatedDate)

	second := listing.Candidates[1]
	require.Equal(t, "roi_77215", second.ExternalId)
	require.Equal(t, "https://www.roi.ru/77215/", second.Url)
	require.Equal(t, "308", second.Votes)
	// no jurisdiction block on this candidate
	require.Equal(t, DefaultLevel, second.Level)

	require.Equal(t, "https://www.roi.ru/poll/last/?level=1&page=2", listing.NextPageUrl)
}

func TestParseListingItemFallback(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/roi")
	defer cleanup()

	client := newTestClient(t, "")
	listing := client.ParseListing(context.Background(), parseFixture(t, listingItemsHtml))

	require.Len(t, listing.Candidates, 1)
	require.Equal(t, "roi_51100", listing.Candidates[0].ExternalId)
	require.Equal(t, "Муниципальный", listing.Candidates[0].Level)

	// pagination located via the yiiPager marker, next link by label
	require.Equal(t, "https://www.roi.ru/poll/last/?level=2&page=3", listing.NextPageUrl)
}

func listingPageBody(id int, next string) string {
	nextLink := ""
	if next != "" {
		nextLink = fmt.Sprintf(`<a class="next" href="%s">Следующая</a>`, next)
	}
	return fmt.Sprintf(`<html><body>
<div class="col-1">
  <div class="link"><a href="/%d/">Инициатива %d</a></div>
  <div class="hour"><b>%d</b></div>
</div>
<div class="pagination">%s</div>
</body></html>`, id, id, id, nextLink)
}

func TestInitiativesTraversal(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/roi")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page1":
			fmt.Fprint(w, listingPageBody(100, "/page2"))
		case "/page2":
			// next page loops back onto itself, the cycle guard must stop here
			fmt.Fprint(w, listingPageBody(200, "/page2"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	candidates, err := client.Initiatives(context.Background(), server.URL+"/page1", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "roi_100", candidates[0].ExternalId)
	require.Equal(t, "roi_200", candidates[1].ExternalId)
}

func TestInitiativesMaxPages(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/roi")
	defer cleanup()

	pagesServed := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		fmt.Fprint(w, listingPageBody(pagesServed, fmt.Sprintf("/page%d", pagesServed+1)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	candidates, err := client.Initiatives(context.Background(), server.URL+"/page1", 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, 2, pagesServed)
}

func TestInitiativesFirstPageFailure(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/roi")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	client.Http.SetRetryCount(0)

	candidates, err := client.Initiatives(context.Background(), server.URL+"/page1", 3)
	require.Error(t, err)
	require.Empty(t, candidates)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
}
