// Package output merges enrichment records into the catalog and writes it out.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dealcatalog/internal/catalog"
)

// Record is one row of the final catalog, enrichment fields are null when the title
// was not found or not looked up.
type Record struct {
	Title           string           `json:"title"`
	Platform        catalog.Platform `json:"platform"`
	Currency        string           `json:"currency"`
	OriginalPrice   int64            `json:"original_price"`
	SpecialPrice    int64            `json:"special_price"`
	DiscountPercent float64          `json:"discount_percent"`
	MetaScore       *int             `json:"meta_score"`
	MetaReviews     *int             `json:"meta_reviews"`
	UserScore       *float64         `json:"user_score"`
	UserReviews     *int             `json:"user_reviews"`
	ReleaseDate     *catalog.Date    `json:"release_date"`
	Publisher       *string          `json:"publisher"`
	Genre           []string         `json:"genre"`
}

// Columns is the fixed column order of the csv output.
var Columns = []string{
	"title",
	"platform",
	"currency",
	"original_price",
	"special_price",
	"discount_percent",
	"meta_score",
	"meta_reviews",
	"user_score",
	"user_reviews",
	"release_date",
	"publisher",
	"genre",
}

// Merge returns exactly one record per listing, in listing order. Enrichments are
// keyed by catalog.TitleKey.
func Merge(listings []catalog.Listing, enrichments map[string]catalog.Enrichment) []Record {
	records := make([]Record, len(listings))
	for i, l := range listings {
		r := Record{
			Title:           l.Title,
			Platform:        l.Platform,
			Currency:        l.Currency,
			OriginalPrice:   l.OriginalPrice,
			SpecialPrice:    l.SpecialPrice,
			DiscountPercent: l.DiscountPercent,
		}
		e, ok := enrichments[l.Key()]
		if ok {
			r.MetaScore = e.MetaScore
			r.MetaReviews = e.MetaReviews
			r.UserScore = e.UserScore
			r.UserReviews = e.UserReviews
			r.ReleaseDate = e.ReleaseDate
			r.Publisher = e.Publisher
			r.Genre = e.Genre
			if r.Genre == nil {
				r.Genre = []string{}
			}
		}
		records[i] = r
	}
	return records
}

func writeIndentedJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}

// WriteJSON writes the records as an indented array, null fields are kept as null.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	return writeIndentedJSON(w, records)
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// WriteCSV writes a header row and one row per record, null fields are empty cells
// and genres are joined with "; ".
func WriteCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	err := writer.Write(Columns)
	if err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Title,
			string(r.Platform),
			r.Currency,
			strconv.FormatInt(r.OriginalPrice, 10),
			strconv.FormatInt(r.SpecialPrice, 10),
			strconv.FormatFloat(r.DiscountPercent, 'f', -1, 64),
			optionalInt(r.MetaScore),
			optionalInt(r.MetaReviews),
			optionalFloat(r.UserScore),
			optionalInt(r.UserReviews),
			"",
			"",
			strings.Join(r.Genre, "; "),
		}
		if r.ReleaseDate != nil {
			row[10] = r.ReleaseDate.String()
		}
		if r.Publisher != nil {
			row[11] = *r.Publisher
		}
		err := writer.Write(row)
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCatalog writes the base catalog the enrichment stage reads back.
func WriteCatalog(w io.Writer, listings []catalog.Listing) error {
	if listings == nil {
		listings = []catalog.Listing{}
	}
	return writeIndentedJSON(w, listings)
}

// ReadCatalog reads a base catalog written by WriteCatalog.
func ReadCatalog(r io.Reader) ([]catalog.Listing, error) {
	var listings []catalog.Listing
	err := json.NewDecoder(r).Decode(&listings)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i, l := range listings {
		if l.Title == "" {
			return nil, fmt.Errorf("decode catalog: entry %d has no title", i)
		}
	}
	return listings, nil
}
