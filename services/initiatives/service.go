// Package initiatives collects public initiative records from roi.ru
// and keeps them in a local sqlite database for review and voting.
package initiatives

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"roiassist-backend/lib/scrapers/roi"
	"roiassist-backend/lib/textutil"
	"roiassist-backend/services/initiatives/db"
)

var tracer = otel.Tracer("services/initiatives")

// ErrNoRecords is returned by Sync when a run produced no candidate
// records at all, as opposed to a run where everything was already
// stored.
var ErrNoRecords = errors.New("no initiative records obtained")

// DefaultInsertDelay spaces out detail page fetches during a sync.
const DefaultInsertDelay = 500 * time.Millisecond

// free-text columns are bounded so one oversized page cannot bloat the
// store; the combined blob carries several sections so it gets more room
const (
	maxFieldRunes    = 5000
	maxCombinedRunes = 4 * maxFieldRunes
)

type Service struct {
	db          *sql.DB
	qry         *db.Queries
	scraper     *roi.Client
	insertDelay time.Duration
}

type ServiceOptions struct {
	// InsertDelay overrides the pause between detail fetches.
	// Negative disables it.
	InsertDelay time.Duration
}

func NewService(database *sql.DB, scraper *roi.Client, opts ServiceOptions) *Service {
	delay := opts.InsertDelay
	if delay == 0 {
		delay = DefaultInsertDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Service{
		db:          database,
		qry:         db.New(database),
		scraper:     scraper,
		insertDelay: delay,
	}
}

type SyncOptions struct {
	// StartUrl defaults to the federal-level listing.
	StartUrl string
	// MaxPages bounds listing traversal, zero means a single page.
	MaxPages int
}

type SyncResult struct {
	Inserted int
	Skipped  int
	Records  []db.Initiative
}

// Sync walks the listing, enriches new records from their detail pages
// and stores them. Records already present under the same external id
// or url are skipped, existing rows are never modified.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()

	startUrl := opts.StartUrl
	if startUrl == "" {
		startUrl = roi.DefaultListingUrl
	}

	candidates, err := s.scraper.Initiatives(ctx, startUrl, opts.MaxPages)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch listing: %w", err)
	}
	if len(candidates) == 0 {
		return SyncResult{}, ErrNoRecords
	}

	var result SyncResult
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inserted, record, err := s.storeCandidate(ctx, candidate)
		if err != nil {
			return result, fmt.Errorf("store %s: %w", candidate.ExternalId, err)
		}
		if !inserted {
			result.Skipped++
			continue
		}
		result.Inserted++
		result.Records = append(result.Records, record)

		if s.insertDelay > 0 {
			select {
			case <-time.After(s.insertDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	span.SetAttributes(
		attribute.Int("inserted", result.Inserted),
		attribute.Int("skipped", result.Skipped),
	)
	return result, nil
}

// storeCandidate reports whether the candidate was newly inserted. The
// duplicate check and the insert run inside one transaction so two
// overlapping syncs cannot both insert the same record.
func (s *Service) storeCandidate(ctx context.Context, candidate roi.Candidate) (bool, db.Initiative, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, db.Initiative{}, err
	}
	defer tx.Rollback()
	qtx := s.qry.WithTx(tx)

	_, err = qtx.GetInitiativeByIdentity(ctx, db.GetInitiativeByIdentityParams{
		ExternalID: candidate.ExternalId,
		Url:        candidate.Url,
	})
	if err == nil {
		return false, db.Initiative{}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, db.Initiative{}, err
	}

	details, err := s.scraper.InitiativeDetails(ctx, candidate.Url)
	if err != nil {
		// a failed detail fetch still leaves a usable listing record
		slog.WarnContext(ctx, "detail fetch failed, storing listing fields only",
			"url", candidate.Url, "err", err)
		details = roi.DetailFields{SourceStatus: roi.DefaultSourceStatus}
	}

	params := buildCreateParams(candidate, details, time.Now())
	err = qtx.CreateInitiative(ctx, params)
	if err != nil {
		return false, db.Initiative{}, err
	}
	record, err := qtx.GetInitiativeByIdentity(ctx, db.GetInitiativeByIdentityParams{
		ExternalID: candidate.ExternalId,
		Url:        candidate.Url,
	})
	if err != nil {
		return false, db.Initiative{}, err
	}
	return true, record, tx.Commit()
}

func buildCreateParams(candidate roi.Candidate, details roi.DetailFields, now time.Time) db.CreateInitiativeParams {
	// a zero tally from the detail page may be a placeholder, keep the
	// listing count in that case
	votes := candidate.Votes
	if details.Votes != "" && details.Votes != "0" {
		votes = details.Votes
	}
	antiVotes := candidate.AntiVotes
	if details.AntiVotes != "" && details.AntiVotes != "0" {
		antiVotes = details.AntiVotes
	}
	sourceStatus := details.SourceStatus
	if sourceStatus == "" {
		sourceStatus = roi.DefaultSourceStatus
	}
	fullText := textutil.Truncate(details.FullText, maxFieldRunes)
	proposalText := textutil.Truncate(details.ProposalText, maxFieldRunes)
	resultText := textutil.Truncate(details.ResultText, maxFieldRunes)
	return db.CreateInitiativeParams{
		ExternalID:   candidate.ExternalId,
		Title:        candidate.Title,
		Description:  candidate.Description,
		Url:          candidate.Url,
		Category:     candidate.Category,
		Level:        candidate.Level,
		Votes:        votes,
		AntiVotes:    antiVotes,
		CreatedDate:  candidate.CreatedDate,
		FullText:     fullText,
		ProposalText: proposalText,
		ResultText:   resultText,
		CombinedText: CombineText(candidate.Title, fullText, proposalText, resultText),
		EndDate:      details.EndDate,
		Author:       details.Author,
		Source:       db.DefaultSource,
		SourceStatus: sourceStatus,
		AddedAt:      now,
	}
}

// CombineText joins the title and the text sections into one searchable
// blob, skipping empty sections.
func CombineText(sections ...string) string {
	var parts []string
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		parts = append(parts, section)
	}
	return textutil.Truncate(strings.Join(parts, "\n\n"), maxCombinedRunes)
}

type RefreshResult struct {
	Updated int
	Failed  int
}

// Refresh re-fetches the detail page of every stored initiative and
// updates the source-derived columns in place. Local annotations like
// the vote and status survive a refresh untouched.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	records, err := s.qry.ListInitiatives(ctx)
	if err != nil {
		return RefreshResult{}, err
	}

	var result RefreshResult
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		details, err := s.scraper.InitiativeDetails(ctx, record.Url)
		if err != nil {
			slog.WarnContext(ctx, "refresh fetch failed",
				"url", record.Url, "err", err)
			result.Failed++
			continue
		}

		err = s.qry.UpdateInitiativeDetails(ctx, refreshParams(record, details))
		if err != nil {
			return result, fmt.Errorf("update %s: %w", record.ExternalID, err)
		}
		result.Updated++

		if s.insertDelay > 0 {
			select {
			case <-time.After(s.insertDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, nil
}

// refreshParams keeps a stored value wherever the re-fetched page came
// back without one, a thin page must not erase known fields.
func refreshParams(record db.Initiative, details roi.DetailFields) db.UpdateInitiativeDetailsParams {
	params := db.UpdateInitiativeDetailsParams{
		ID:           record.ID,
		Votes:        record.Votes,
		AntiVotes:    record.AntiVotes,
		FullText:     record.FullText,
		ProposalText: record.ProposalText,
		ResultText:   record.ResultText,
		EndDate:      record.EndDate,
		Author:       record.Author,
		SourceStatus: record.SourceStatus,
	}
	if details.Votes != "" && details.Votes != "0" {
		params.Votes = details.Votes
	}
	if details.AntiVotes != "" && details.AntiVotes != "0" {
		params.AntiVotes = details.AntiVotes
	}
	if details.FullText != "" {
		params.FullText = textutil.Truncate(details.FullText, maxFieldRunes)
	}
	if details.ProposalText != "" {
		params.ProposalText = textutil.Truncate(details.ProposalText, maxFieldRunes)
	}
	if details.ResultText != "" {
		params.ResultText = textutil.Truncate(details.ResultText, maxFieldRunes)
	}
	if details.EndDate != "" {
		params.EndDate = details.EndDate
	}
	if details.Author != "" {
		params.Author = details.Author
	}
	if details.SourceStatus != "" {
		params.SourceStatus = details.SourceStatus
	}
	params.CombinedText = CombineText(record.Title, params.FullText, params.ProposalText, params.ResultText)
	return params
}

func (s *Service) Get(ctx context.Context, id int64) (db.Initiative, error) {
	return s.qry.GetInitiative(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]db.Initiative, error) {
	return s.qry.ListInitiatives(ctx)
}

func (s *Service) ListByStatus(ctx context.Context, status string) ([]db.Initiative, error) {
	return s.qry.ListInitiativesByStatus(ctx, status)
}

// SetVote records a local voting decision for a stored initiative.
func (s *Service) SetVote(ctx context.Context, id int64, vote string) error {
	switch vote {
	case db.VoteFor, db.VoteAgainst, db.VoteIgnore:
	default:
		return fmt.Errorf("unknown vote %q", vote)
	}
	if _, err := s.qry.GetInitiative(ctx, id); err != nil {
		return err
	}
	return s.qry.SetInitiativeVote(ctx, db.SetInitiativeVoteParams{
		ID:       id,
		Vote:     vote,
		VoteDate: time.Now(),
	})
}

// RevokeVote clears a previously recorded decision and puts the record
// back in the review queue.
func (s *Service) RevokeVote(ctx context.Context, id int64) error {
	if _, err := s.qry.GetInitiative(ctx, id); err != nil {
		return err
	}
	return s.qry.RevokeInitiativeVote(ctx, id)
}

func (s *Service) SetStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case db.StatusNew, db.StatusVoted, db.StatusIgnored:
	default:
		return fmt.Errorf("unknown status %q", status)
	}
	if _, err := s.qry.GetInitiative(ctx, id); err != nil {
		return err
	}
	return s.qry.SetInitiativeStatus(ctx, id, status)
}

type Stats struct {
	Total         int64
	New           int64
	Voted         int64
	Ignored       int64
	AddedThisWeek int64
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	var err error
	if stats.Total, err = s.qry.CountInitiatives(ctx); err != nil {
		return Stats{}, err
	}
	if stats.New, err = s.qry.CountInitiativesByStatus(ctx, db.StatusNew); err != nil {
		return Stats{}, err
	}
	if stats.Voted, err = s.qry.CountInitiativesByStatus(ctx, db.StatusVoted); err != nil {
		return Stats{}, err
	}
	if stats.Ignored, err = s.qry.CountInitiativesByStatus(ctx, db.StatusIgnored); err != nil {
		return Stats{}, err
	}
	stats.AddedThisWeek, err = s.qry.CountInitiativesAddedSince(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Clear drops every stored initiative.
func (s *Service) Clear(ctx context.Context) error {
	return s.qry.DeleteAllInitiatives(ctx)
}
