package commands

import (
	"os"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/pipeline"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printSummary(summary *pipeline.Summary) {
	summary.Elapsed = time.Since(current.started).Round(time.Millisecond)

	t := newTable()
	t.SetTitle("run " + summary.RunId)
	t.AppendRows([]table.Row{
		{"platform", summary.Platform},
		{"listings", summary.Listings},
		{"pages", summary.Pages},
		{"requests", summary.Requests},
		{"duplicates", summary.Duplicates},
		{"markup drift", summary.Drift},
	})
	if summary.Lookups > 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"lookups", summary.Lookups},
			{"enriched", summary.Enriched},
			{"from cache", summary.Cached},
			{"not found", summary.NotFound},
			{"unattempted", summary.Unattempted},
		})
	}
	t.AppendSeparator()
	for _, category := range catalog.Categories {
		if count := summary.Anomalies[category]; count > 0 {
			t.AppendRow(table.Row{string(category), count})
		}
	}
	t.AppendRow(table.Row{"skipped", summary.Skipped()})
	t.AppendRow(table.Row{"partial", summary.Partial})
	t.AppendRow(table.Row{"elapsed", summary.Elapsed})
	for _, path := range summary.Outputs {
		t.AppendRow(table.Row{"wrote", path})
	}
	t.Render()
}
