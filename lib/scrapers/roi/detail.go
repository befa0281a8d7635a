package roi

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"roiassist-backend/lib/htmlutil"
	"roiassist-backend/lib/textutil"
)

const (
	DefaultSourceStatus = "на голосовании"

	// large free-text fields are truncated to bound row size
	maxTextLength = 5000

	resultHeading   = "Практический результат"
	decisionHeading = "Решение"
	endDateTitle    = "Голосование закончится"

	votesForLabel     = "За инициативу подано:"
	votesAgainstLabel = "Против инициативы подано:"
)

// DetailFields holds everything extractable from a detail page. Every
// field is independently optional: an empty string means the source had
// nothing to offer, and the documented defaults are applied at the
// store-write boundary.
type DetailFields struct {
	FullText     string
	ResultText   string
	ProposalText string
	EndDate      string
	Author       string
	SourceStatus string
	Votes        string
	AntiVotes    string
}

// InitiativeDetails fetches and extracts the extended fields for one
// initiative. Only a fetch or parse failure of the page itself is an
// error; missing markup within the page never is.
func (c *Client) InitiativeDetails(ctx context.Context, pageUrl string) (DetailFields, error) {
	ctx, span := tracer.Start(ctx, "client:InitiativeDetails")
	defer span.End()
	span.SetAttributes(attribute.String("url", pageUrl))

	doc, err := c.FetchDocument(ctx, pageUrl)
	if err != nil {
		return DetailFields{}, err
	}
	return ParseDetail(doc), nil
}

// ParseDetail extracts the detail fields from a parsed detail page.
// Each extraction is independent of the others.
func ParseDetail(doc *goquery.Document) DetailFields {
	details := DetailFields{
		SourceStatus: DefaultSourceStatus,
		Votes:        "0",
		AntiVotes:    "0",
	}

	details.FullText = parseFullText(doc)
	details.ResultText = parseResultText(doc)
	details.ProposalText = parseProposalText(doc)
	details.EndDate = parseEndDate(doc)
	details.Author = textutil.NormalizeSpace(doc.Find("div.author").First().Text())

	votes, antiVotes := parseVoteTallies(doc)
	if votes != "" {
		details.Votes = votes
	}
	if antiVotes != "" {
		details.AntiVotes = antiVotes
	}

	return details
}

func parseFullText(doc *goquery.Document) string {
	block := doc.Find("div.block.petition-text-block").First()
	if block.Length() == 0 {
		return ""
	}

	paragraphs := block.Find("p")
	if paragraphs.Length() == 0 {
		paragraphs = block.Find("div.paragraph-transform")
	}

	var parts []string
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		if text := textutil.NormalizeSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return textutil.Truncate(strings.Join(parts, " "), maxTextLength)
}

func parseResultText(doc *goquery.Document) string {
	heading := findHeading(doc, resultHeading)
	if heading == nil {
		return ""
	}
	next := htmlutil.NextMatch(doc, heading.Nodes[0], "div.paragraph-transform")
	if next == nil {
		return ""
	}
	return textutil.NormalizeSpace(next.Text())
}

func parseProposalText(doc *goquery.Document) string {
	heading := findHeading(doc, decisionHeading)
	if heading == nil {
		return ""
	}
	decision := htmlutil.NextMatch(doc, heading.Nodes[0], "div.decision-item")
	if decision == nil {
		return ""
	}

	var parts []string
	decision.Find("div.paragraph-transform").Each(func(_ int, p *goquery.Selection) {
		if text := textutil.NormalizeSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func findHeading(doc *goquery.Document, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("h2").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if textutil.NormalizeSpace(h.Text()) == label {
			found = h
			return false
		}
		return true
	})
	return found
}

var endDateFormats = []string{"02-01-2006", "2006-01-02", "02.01.2006"}

// NormalizeDate converts a date in one of the known source formats to
// ISO form. Unrecognized input is returned verbatim rather than dropped.
func NormalizeDate(raw string) string {
	for _, format := range endDateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return raw
}

func parseEndDate(doc *goquery.Document) string {
	sideInfo := doc.Find("aside.col-right div.inic-side-info").First()
	if sideInfo.Length() == 0 {
		return ""
	}

	raw := ""
	sideInfo.Find("div.title").EachWithBreak(func(_ int, title *goquery.Selection) bool {
		if !strings.Contains(title.Text(), endDateTitle) {
			return true
		}
		if date := htmlutil.NextMatch(doc, title.Nodes[0], "div.date"); date != nil {
			raw = textutil.NormalizeSpace(date.Text())
		}
		return false
	})
	if raw == "" {
		return ""
	}
	return NormalizeDate(raw)
}

func parseVoteTallies(doc *goquery.Document) (votes, antiVotes string) {
	if sideInfo := doc.Find("aside.col-right div.inic-side-info").First(); sideInfo.Length() > 0 {
		sideInfo.Find("div.voting-solution").Each(func(_ int, div *goquery.Selection) {
			text := div.Text()
			switch {
			case strings.Contains(text, votesForLabel):
				votes = textutil.Digits(div.Find("b.js-voting-info-affirmative").First().Text())
			case strings.Contains(text, votesAgainstLabel):
				antiVotes = textutil.Digits(div.Find("b.js-voting-info-negative").First().Text())
			}
		})
	}

	// a zero tally from the side panel may just be a stale placeholder,
	// retry page-wide before accepting it as final
	if antiVotes == "" || antiVotes == "0" {
		if v := textutil.Digits(doc.Find("b.js-voting-info-negative").First().Text()); v != "" {
			antiVotes = v
		}
	}
	if votes == "" || votes == "0" {
		if v := textutil.Digits(doc.Find("b.js-voting-info-affirmative").First().Text()); v != "" {
			votes = v
		}
	}
	return votes, antiVotes
}
