package db

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Initiative struct {
	ID           int64
	ExternalID   string
	Title        string
	Description  string
	Url          string
	Category     string
	Level        string
	Votes        string
	AntiVotes    string
	CreatedDate  string
	FullText     string
	ProposalText string
	ResultText   string
	CombinedText string
	EndDate      string
	Author       string
	Source       string
	SourceStatus string
	Status       string
	Vote         sql.NullString
	VoteDate     sql.NullTime
	AddedAt      time.Time
}

const initiativeColumns = `id, external_id, title, description, url, category, level,
votes, anti_votes, created_date, full_text, proposal_text, result_text,
combined_text, end_date, author, source, source_status, status, vote,
vote_date, added_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInitiative(row scanner) (Initiative, error) {
	var i Initiative
	err := row.Scan(
		&i.ID,
		&i.ExternalID,
		&i.Title,
		&i.Description,
		&i.Url,
		&i.Category,
		&i.Level,
		&i.Votes,
		&i.AntiVotes,
		&i.CreatedDate,
		&i.FullText,
		&i.ProposalText,
		&i.ResultText,
		&i.CombinedText,
		&i.EndDate,
		&i.Author,
		&i.Source,
		&i.SourceStatus,
		&i.Status,
		&i.Vote,
		&i.VoteDate,
		&i.AddedAt,
	)
	return i, err
}

type GetInitiativeByIdentityParams struct {
	ExternalID string
	Url        string
}

// GetInitiativeByIdentity treats a match on either identity key as the
// same record.
func (q *Queries) GetInitiativeByIdentity(ctx context.Context, arg GetInitiativeByIdentityParams) (Initiative, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+initiativeColumns+`
FROM initiatives
WHERE external_id = ? OR url = ?
LIMIT 1`,
		arg.ExternalID, arg.Url,
	)
	return scanInitiative(row)
}

func (q *Queries) GetInitiative(ctx context.Context, id int64) (Initiative, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+initiativeColumns+`
FROM initiatives
WHERE id = ?`,
		id,
	)
	return scanInitiative(row)
}

type CreateInitiativeParams struct {
	ExternalID   string
	Title        string
	Description  string
	Url          string
	Category     string
	Level        string
	Votes        string
	AntiVotes    string
	CreatedDate  string
	FullText     string
	ProposalText string
	ResultText   string
	CombinedText string
	EndDate      string
	Author       string
	Source       string
	SourceStatus string
	AddedAt      time.Time
}

func (q *Queries) CreateInitiative(ctx context.Context, arg CreateInitiativeParams) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO initiatives (
	external_id, title, description, url, category, level,
	votes, anti_votes, created_date, full_text, proposal_text,
	result_text, combined_text, end_date, author, source,
	source_status, status, added_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.ExternalID,
		arg.Title,
		arg.Description,
		arg.Url,
		arg.Category,
		arg.Level,
		arg.Votes,
		arg.AntiVotes,
		arg.CreatedDate,
		arg.FullText,
		arg.ProposalText,
		arg.ResultText,
		arg.CombinedText,
		arg.EndDate,
		arg.Author,
		arg.Source,
		arg.SourceStatus,
		StatusNew,
		arg.AddedAt,
	)
	return err
}

type UpdateInitiativeDetailsParams struct {
	ID           int64
	Votes        string
	AntiVotes    string
	FullText     string
	ProposalText string
	ResultText   string
	CombinedText string
	EndDate      string
	Author       string
	SourceStatus string
}

// UpdateInitiativeDetails back-fills source-derived fields only, the
// local annotation columns are never touched.
func (q *Queries) UpdateInitiativeDetails(ctx context.Context, arg UpdateInitiativeDetailsParams) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE initiatives
SET votes = ?, anti_votes = ?, full_text = ?, proposal_text = ?,
	result_text = ?, combined_text = ?, end_date = ?, author = ?,
	source_status = ?
WHERE id = ?`,
		arg.Votes,
		arg.AntiVotes,
		arg.FullText,
		arg.ProposalText,
		arg.ResultText,
		arg.CombinedText,
		arg.EndDate,
		arg.Author,
		arg.SourceStatus,
		arg.ID,
	)
	return err
}

func (q *Queries) queryInitiatives(ctx context.Context, query string, args ...any) ([]Initiative, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Initiative
	for rows.Next() {
		i, err := scanInitiative(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) ListInitiatives(ctx context.Context) ([]Initiative, error) {
	return q.queryInitiatives(ctx, `
SELECT `+initiativeColumns+`
FROM initiatives
ORDER BY added_at DESC, id DESC`)
}

func (q *Queries) ListInitiativesByStatus(ctx context.Context, status string) ([]Initiative, error) {
	return q.queryInitiatives(ctx, `
SELECT `+initiativeColumns+`
FROM initiatives
WHERE status = ?
ORDER BY added_at DESC, id DESC`,
		status,
	)
}

type SetInitiativeVoteParams struct {
	ID       int64
	Vote     string
	VoteDate time.Time
}

func (q *Queries) SetInitiativeVote(ctx context.Context, arg SetInitiativeVoteParams) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE initiatives
SET vote = ?, status = ?, vote_date = ?
WHERE id = ?`,
		arg.Vote, StatusVoted, arg.VoteDate, arg.ID,
	)
	return err
}

func (q *Queries) RevokeInitiativeVote(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE initiatives
SET vote = NULL, vote_date = NULL, status = ?
WHERE id = ?`,
		StatusNew, id,
	)
	return err
}

func (q *Queries) SetInitiativeStatus(ctx context.Context, id int64, status string) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE initiatives
SET status = ?
WHERE id = ?`,
		status, id,
	)
	return err
}

func (q *Queries) CountInitiatives(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM initiatives`).Scan(&count)
	return count, err
}

func (q *Queries) CountInitiativesByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM initiatives WHERE status = ?`, status).Scan(&count)
	return count, err
}

func (q *Queries) CountInitiativesAddedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM initiatives WHERE added_at > ?`, since).Scan(&count)
	return count, err
}

func (q *Queries) DeleteAllInitiatives(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM initiatives`)
	return err
}
