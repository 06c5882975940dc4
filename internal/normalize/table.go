package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// canonical column names
const (
	ColumnTitle    = "title"
	ColumnOriginal = "original_price"
	ColumnSpecial  = "special_price"
	// ColumnPrice holds both prices in SteamSpy form: "$3.74 ($14.99)".
	ColumnPrice = "price"
)

var headerAliases = map[string]string{
	"title":          ColumnTitle,
	"game":           ColumnTitle,
	"name":           ColumnTitle,
	"original_price": ColumnOriginal,
	"original":       ColumnOriginal,
	"regular_price":  ColumnOriginal,
	"special_price":  ColumnSpecial,
	"sale_price":     ColumnSpecial,
	"price_now":      ColumnSpecial,
	"price":          ColumnPrice,
}

// ErrMissingColumns is returned when a table has no title column or no way to read both prices.
var ErrMissingColumns = errors.New("missing required columns")

// Row is one record keyed by canonical column name.
type Row struct {
	// Line is the 1-based line of the record in the input, the header is line 1.
	Line   int
	Fields map[string]string
}

// Table is a parsed delimited file.
type Table struct {
	Columns []string
	Rows    []Row
	// Malformed are records whose field count does not match the header, they are
	// not part of Rows.
	Malformed []int
}

// Combined is true when prices come from a single SteamSpy style column.
func (t Table) Combined() bool {
	original, special := false, false
	for _, c := range t.Columns {
		original = original || c == ColumnOriginal
		special = special || c == ColumnSpecial
	}
	return !original || !special
}

func canonicalHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")
	if canonical, ok := headerAliases[name]; ok {
		return canonical
	}
	return name
}

// sniffDelimiter picks whichever of , ; and tab occurs most in the header line.
func sniffDelimiter(header []byte) rune {
	best := ','
	bestCount := bytes.Count(header, []byte{','})
	for _, candidate := range []rune{';', '\t'} {
		n := bytes.Count(header, []byte(string(candidate)))
		if n > bestCount {
			best = candidate
			bestCount = n
		}
	}
	return best
}

// ReadTable parses a delimited file with a header row. Missing required columns are
// a run-level error, rows that do not fit the header are only counted.
func ReadTable(r io.Reader) (Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read table: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	if len(bytes.TrimSpace(raw)) == 0 {
		return Table{}, fmt.Errorf("read table: %w: empty input", ErrMissingColumns)
	}

	headerLine := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		headerLine = raw[:i]
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = sniffDelimiter(headerLine)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Table{}, fmt.Errorf("read table header: %w", err)
	}

	table := Table{}
	present := map[string]bool{}
	for _, h := range header {
		canonical := canonicalHeader(h)
		table.Columns = append(table.Columns, canonical)
		present[canonical] = true
	}

	hasSplit := present[ColumnOriginal] && present[ColumnSpecial]
	if !present[ColumnTitle] || (!hasSplit && !present[ColumnPrice]) {
		return Table{}, fmt.Errorf(
			"%w: need %q and either %q + %q or %q, got %v",
			ErrMissingColumns,
			ColumnTitle, ColumnOriginal, ColumnSpecial, ColumnPrice,
			table.Columns,
		)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				table.Malformed = append(table.Malformed, parseErr.StartLine)
				continue
			}
			return Table{}, fmt.Errorf("read table: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(table.Columns) {
			table.Malformed = append(table.Malformed, line)
			continue
		}

		fields := make(map[string]string, len(record))
		for i, value := range record {
			fields[table.Columns[i]] = strings.TrimSpace(value)
		}
		table.Rows = append(table.Rows, Row{Line: line, Fields: fields})
	}
	return table, nil
}
