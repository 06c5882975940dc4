package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dealcatalog/internal/catalog"
)

// FileDate is the DD-MM-YYYY stamp every file of a run carries.
func FileDate(t time.Time) string {
	return t.Format(catalog.DateLayout)
}

// ParseFileDate reads a DD-MM-YYYY stamp.
func ParseFileDate(s string) (time.Time, error) {
	t, err := time.Parse(catalog.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not DD-MM-YYYY: %w", s, err)
	}
	return t, nil
}

// CatalogName is the base catalog of a platform, the enrichment stage locates its
// input through this name.
func CatalogName(platform catalog.Platform, date time.Time) string {
	return fmt.Sprintf("%s_discount_catalogue_%s.json", platform, FileDate(date))
}

// EnrichedName is the final output of a platform, ext is "csv" or "json".
func EnrichedName(platform catalog.Platform, date time.Time, ext string) string {
	return fmt.Sprintf("%s_discount_catalogue_with_info_%s.%s", platform, FileDate(date), ext)
}

// TableName is the SteamSpy export the convert stage reads.
func TableName(date time.Time) string {
	return fmt.Sprintf("steamspy_deals_%s.csv", FileDate(date))
}

// WriteFile writes through a temporary file in the same directory and renames it into
// place, a reader never sees a half written catalog.
func WriteFile(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = write(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
