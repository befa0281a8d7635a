package initiatives

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roiassist-backend/lib/scrapers/roi"
	"roiassist-backend/lib/testutil"
	"roiassist-backend/services/initiatives/db"

	_ "modernc.org/sqlite"
)

func listingBody(ids []int, next string) string {
	var blocks strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&blocks, `
<div class="col-1">
	<div class="link"><a href="/initiative/%d/" title="Инициатива %d">Инициатива %d</a></div>
	<div class="hour"><b>%d голосов</b></div>
	<div class="jurisdiction">Уровень инициативы: Федеральный</div>
</div>`, id, id, id, id*100)
	}
	nextLink := ""
	if next != "" {
		nextLink = fmt.Sprintf(`<div class="pagination"><a class="next" href="%s">Следующая</a></div>`, next)
	}
	return fmt.Sprintf(`<html><body>%s%s</body></html>`, blocks.String(), nextLink)
}

func detailBody(id int) string {
	return fmt.Sprintf(`<html><body>
<div class="block petition-text-block">
	<p>Полный текст инициативы %d.</p>
</div>
<h2>Практический результат</h2>
<div class="paragraph-transform">Результат %d.</div>
<aside class="col-right">
	<div class="inic-side-info">
		<div class="title">Голосование закончится</div>
		<div class="date">31-12-2026</div>
		<div class="author">Автор %d</div>
	</div>
	<div class="voting-solution">За инициативу подано: <b class="js-voting-info-affirmative">%d голосов</b></div>
	<div class="voting-solution">Против инициативы подано: <b class="js-voting-info-negative">%d голосов</b></div>
</aside>
</body></html>`, id, id, id, id*100+1, id*10)
}

type fakeSite struct {
	// detail urls that should return a server error
	broken map[int]bool
	pages  map[string][]int
}

func (f *fakeSite) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/initiative/") {
			var id int
			fmt.Sscanf(r.URL.Path, "/initiative/%d/", &id)
			if f.broken[id] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, detailBody(id))
			return
		}
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		ids, ok := f.pages[page]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		next := ""
		if _, ok := f.pages[nextPage(page)]; ok {
			next = "/poll/last/?page=" + nextPage(page)
		}
		fmt.Fprint(w, listingBody(ids, next))
	})
}

func nextPage(page string) string {
	switch page {
	case "1":
		return "2"
	case "2":
		return "3"
	}
	return ""
}

func setupSyncTest(t *testing.T, site *fakeSite) (*Service, string, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/initiatives",
		DbSchema: db.Schema,
	})

	server := httptest.NewServer(site.handler())

	client, err := roi.NewClient(roi.ClientOptions{
		BaseUrl:   server.URL,
		PageDelay: -1,
	})
	require.NoError(t, err)
	client.Http.SetRetryCount(0)

	service := NewService(setup.DB, client, ServiceOptions{InsertDelay: -1})
	return service, server.URL, func() {
		server.Close()
		cleanup()
	}
}

func TestSyncStoresAndDeduplicates(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{
		"1": {101, 102},
		"2": {103},
	}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	{
		result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/", MaxPages: 5})
		require.NoError(t, err)
		require.Equal(t, 3, result.Inserted)
		require.Equal(t, 0, result.Skipped)
		require.Len(t, result.Records, 3)

		record := result.Records[0]
		require.Equal(t, "roi_101", record.ExternalID)
		require.Equal(t, "Инициатива 101", record.Title)
		require.Equal(t, "Федеральный", record.Level)
		require.Equal(t, "10101", record.Votes)
		require.Equal(t, "1010", record.AntiVotes)
		require.Equal(t, "Полный текст инициативы 101.", record.FullText)
		require.Equal(t, "Результат 101.", record.ResultText)
		require.Equal(t, "2026-12-31", record.EndDate)
		require.Equal(t, "Автор 101", record.Author)
		require.Equal(t, db.StatusNew, record.Status)
		require.Contains(t, record.CombinedText, "Инициатива 101")
		require.Contains(t, record.CombinedText, "Полный текст инициативы 101.")
	}
	{
		// a second run over the same pages changes nothing
		result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/", MaxPages: 5})
		require.NoError(t, err)
		require.Equal(t, 0, result.Inserted)
		require.Equal(t, 3, result.Skipped)

		count, err := service.Stats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 3, count.Total)
	}
}

func TestSyncMatchesUrlWithLegacyExternalId(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {200}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// a row stored under a hash id before the numeric scheme existed
	targetUrl := origin + "/initiative/200/"
	err := service.qry.CreateInitiative(ctx, db.CreateInitiativeParams{
		ExternalID:   "roi_a1b2c3d4",
		Title:        "Инициатива 200",
		Url:          targetUrl,
		Category:     roi.DefaultCategory,
		Level:        roi.DefaultLevel,
		Votes:        "1",
		AntiVotes:    "0",
		Source:       db.DefaultSource,
		SourceStatus: roi.DefaultSourceStatus,
		AddedAt:      time.Now(),
	})
	require.NoError(t, err)

	result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)
	require.Equal(t, 0, result.Inserted)
	require.Equal(t, 1, result.Skipped)

	stored, err := service.qry.GetInitiativeByIdentity(ctx, db.GetInitiativeByIdentityParams{
		ExternalID: "roi_200",
		Url:        targetUrl,
	})
	require.NoError(t, err)
	require.Equal(t, "roi_a1b2c3d4", stored.ExternalID)
}

func TestSyncKeepsListingRecordOnDetailFailure(t *testing.T) {
	site := &fakeSite{
		pages:  map[string][]int{"1": {301, 302}},
		broken: map[int]bool{302: true},
	}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Inserted)

	stored, err := service.qry.GetInitiativeByIdentity(ctx, db.GetInitiativeByIdentityParams{
		ExternalID: "roi_302",
	})
	require.NoError(t, err)
	require.Equal(t, "Инициатива 302", stored.Title)
	require.Equal(t, "30200", stored.Votes)
	require.Equal(t, "", stored.FullText)
	require.Equal(t, roi.DefaultSourceStatus, stored.SourceStatus)
}

func TestSyncNoRecords(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestVoteLifecycle(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {400}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	id := result.Records[0].ID

	{
		err := service.SetVote(ctx, id, "maybe")
		require.Error(t, err)
	}
	{
		err := service.SetVote(ctx, id, db.VoteFor)
		require.NoError(t, err)

		stored, err := service.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, db.StatusVoted, stored.Status)
		require.Equal(t, db.VoteFor, stored.Vote.String)
		require.True(t, stored.VoteDate.Valid)

		voted, err := service.ListByStatus(ctx, db.StatusVoted)
		require.NoError(t, err)
		require.Len(t, voted, 1)
	}
	{
		err := service.RevokeVote(ctx, id)
		require.NoError(t, err)

		stored, err := service.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, db.StatusNew, stored.Status)
		require.False(t, stored.Vote.Valid)
		require.False(t, stored.VoteDate.Valid)
	}
	{
		err := service.SetVote(ctx, id+100, db.VoteFor)
		require.ErrorIs(t, err, sql.ErrNoRows)
	}
}

func TestIgnoreLifecycle(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {450, 451}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	id := result.Records[0].ID

	{
		err := service.SetStatus(ctx, id, "archived")
		require.Error(t, err)
	}
	{
		err := service.SetStatus(ctx, id, db.StatusIgnored)
		require.NoError(t, err)

		stored, err := service.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, db.StatusIgnored, stored.Status)
		require.False(t, stored.Vote.Valid)

		ignored, err := service.ListByStatus(ctx, db.StatusIgnored)
		require.NoError(t, err)
		require.Len(t, ignored, 1)

		stats, err := service.Stats(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, stats.Ignored)
		require.EqualValues(t, 1, stats.New)
	}
	{
		// back into the review queue
		err := service.SetStatus(ctx, id, db.StatusNew)
		require.NoError(t, err)

		stored, err := service.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, db.StatusNew, stored.Status)
	}
	{
		err := service.SetStatus(ctx, id+100, db.StatusIgnored)
		require.ErrorIs(t, err, sql.ErrNoRows)
	}
}

func TestStoredTextFieldsAreBounded(t *testing.T) {
	longText := strings.Repeat("а", 9000)
	candidate := roi.Candidate{
		ExternalId: "roi_900",
		Title:      "Инициатива 900",
		Url:        "https://www.roi.ru/900/",
	}
	details := roi.DetailFields{
		FullText:     longText,
		ProposalText: longText,
		ResultText:   longText,
	}

	params := buildCreateParams(candidate, details, time.Now())
	require.Len(t, []rune(params.FullText), 5000)
	require.Len(t, []rune(params.ProposalText), 5000)
	require.Len(t, []rune(params.ResultText), 5000)
	require.LessOrEqual(t, len([]rune(params.CombinedText)), 20000)

	refreshed := refreshParams(db.Initiative{ID: 1, Title: candidate.Title}, details)
	require.Len(t, []rune(refreshed.FullText), 5000)
	require.Len(t, []rune(refreshed.ProposalText), 5000)
	require.Len(t, []rune(refreshed.ResultText), 5000)
	require.LessOrEqual(t, len([]rune(refreshed.CombinedText)), 20000)
}

func TestRefreshPreservesLocalState(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {500}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	result, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)
	id := result.Records[0].ID

	err = service.SetVote(ctx, id, db.VoteAgainst)
	require.NoError(t, err)

	refreshed, err := service.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.Updated)
	require.Equal(t, 0, refreshed.Failed)

	stored, err := service.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, db.StatusVoted, stored.Status)
	require.Equal(t, db.VoteAgainst, stored.Vote.String)
	require.Equal(t, "50001", stored.Votes)
}

func TestRefreshCountsFailures(t *testing.T) {
	site := &fakeSite{
		pages:  map[string][]int{"1": {600}},
		broken: map[int]bool{},
	}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)

	site.broken[600] = true
	refreshed, err := service.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, refreshed.Updated)
	require.Equal(t, 1, refreshed.Failed)
}

func TestExport(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {700}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)

	{
		var buf bytes.Buffer
		err := service.ExportCSV(ctx, &buf)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		require.Contains(t, lines[0], "external_id;title")
		require.Contains(t, lines[1], "roi_700")
		require.Contains(t, lines[1], "Инициатива 700")
	}
	{
		var buf bytes.Buffer
		err := service.ExportJSON(ctx, &buf)
		require.NoError(t, err)

		var exported []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))
		require.Len(t, exported, 1)
		require.Equal(t, "roi_700", exported[0]["external_id"])
		require.Equal(t, "Инициатива 700", exported[0]["title"])
	}
}

func TestClear(t *testing.T) {
	site := &fakeSite{pages: map[string][]int{"1": {800, 801}}}
	service, origin, cleanup := setupSyncTest(t, site)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := service.Sync(ctx, SyncOptions{StartUrl: origin + "/poll/last/"})
	require.NoError(t, err)

	require.NoError(t, service.Clear(ctx))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Total)
}
