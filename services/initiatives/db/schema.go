package db

import _ "embed"

//go:embed schema.sql
var Schema string

// local workflow state, orthogonal to the source's own status label
const (
	StatusNew     = "new"
	StatusVoted   = "voted"
	StatusIgnored = "ignored"
)

const (
	VoteFor     = "for"
	VoteAgainst = "against"
	VoteIgnore  = "ignore"
)

const DefaultSource = "roi.ru"
