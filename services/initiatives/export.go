package initiatives

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "external_id", "title", "url", "category", "level",
	"votes", "anti_votes", "end_date", "author", "source_status",
	"status", "vote", "vote_date", "added_at",
}

// ExportCSV writes every stored initiative as semicolon-delimited csv,
// the delimiter russian-locale spreadsheets expect.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.qry.ListInitiatives(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, record := range records {
		vote := ""
		if record.Vote.Valid {
			vote = record.Vote.String
		}
		voteDate := ""
		if record.VoteDate.Valid {
			voteDate = record.VoteDate.Time.Format(time.DateOnly)
		}
		row := []string{
			strconv.FormatInt(record.ID, 10),
			record.ExternalID,
			record.Title,
			record.Url,
			record.Category,
			record.Level,
			record.Votes,
			record.AntiVotes,
			record.EndDate,
			record.Author,
			record.SourceStatus,
			record.Status,
			vote,
			voteDate,
			record.AddedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type exportedInitiative struct {
	ID           int64  `json:"id"`
	ExternalID   string `json:"external_id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Url          string `json:"url"`
	Category     string `json:"category"`
	Level        string `json:"level"`
	Votes        string `json:"votes"`
	AntiVotes    string `json:"anti_votes"`
	CreatedDate  string `json:"created_date"`
	FullText     string `json:"full_text"`
	ProposalText string `json:"proposal_text"`
	ResultText   string `json:"result_text"`
	EndDate      string `json:"end_date"`
	Author       string `json:"author"`
	Source       string `json:"source"`
	SourceStatus string `json:"source_status"`
	Status       string `json:"status"`
	Vote         string `json:"vote,omitempty"`
	VoteDate     string `json:"vote_date,omitempty"`
	AddedAt      string `json:"added_at"`
}

// ExportJSON writes every stored initiative as a json array.
func (s *Service) ExportJSON(ctx context.Context, w io.Writer) error {
	records, err := s.qry.ListInitiatives(ctx)
	if err != nil {
		return err
	}

	exported := make([]exportedInitiative, 0, len(records))
	for _, record := range records {
		item := exportedInitiative{
			ID:           record.ID,
			ExternalID:   record.ExternalID,
			Title:        record.Title,
			Description:  record.Description,
			Url:          record.Url,
			Category:     record.Category,
			Level:        record.Level,
			Votes:        record.Votes,
			AntiVotes:    record.AntiVotes,
			CreatedDate:  record.CreatedDate,
			FullText:     record.FullText,
			ProposalText: record.ProposalText,
			ResultText:   record.ResultText,
			EndDate:      record.EndDate,
			Author:       record.Author,
			Source:       record.Source,
			SourceStatus: record.SourceStatus,
			Status:       record.Status,
			AddedAt:      record.AddedAt.Format(time.RFC3339),
		}
		if record.Vote.Valid {
			item.Vote = record.Vote.String
		}
		if record.VoteDate.Valid {
			item.VoteDate = record.VoteDate.Time.Format(time.RFC3339)
		}
		exported = append(exported, item)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(exported)
}
