package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is DD-MM-YYYY, the date form used by file names and release dates.
const DateLayout = "02-01-2006"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	err := json.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	parsed, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = parsed
	return nil
}

// Enrichment is the review metadata found for a title, every field is optional.
type Enrichment struct {
	MatchedTitle string   `json:"matched_title"`
	MetaScore    *int     `json:"meta_score"`
	MetaReviews  *int     `json:"meta_reviews"`
	UserScore    *float64 `json:"user_score"`
	UserReviews  *int     `json:"user_reviews"`
	ReleaseDate  *Date    `json:"release_date"`
	Publisher    *string  `json:"publisher"`
	Genre        []string `json:"genre"`
}

// MatchCandidate is a lookup identifier derived from a title, lower priorities are tried first.
type MatchCandidate struct {
	NormalizedTitle  string
	LookupIdentifier string
	Priority         int
}
