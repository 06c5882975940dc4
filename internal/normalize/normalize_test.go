package normalize

import (
	"errors"
	"strings"
	"testing"

	"dealcatalog/internal/catalog"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const steamspyExport = `#,Game,Release date,Price,Userscore,Owners,Playtime (Median)
1,Hollow Knight,"Feb 24, 2017",$7.49 ($14.99),97%,"5,000,000 .. 10,000,000",10:12
2,  Celeste  ,"Jan 25, 2018",$4.99 ($19.99),94%,"1,000,000 .. 2,000,000",06:40
3,Broken Row,"Jan 1, 2020",N/A,50%,"0 .. 20,000",00:00
4,Hollow Knight,"Feb 24, 2017",$7.49 ($14.99),97%,"5,000,000 .. 10,000,000",10:12
5,Short,Row
6,Terraria,"May 16, 2011",US$ 3.74,97%,"20,000,000 .. 50,000,000",20:00
`

func TestReadSteamspyExport(t *testing.T) {
	table, err := ReadTable(strings.NewReader(steamspyExport))
	require.NoError(t, err)
	require.True(t, table.Combined())
	require.Len(t, table.Rows, 5)
	require.Equal(t, []int{6}, table.Malformed)

	result := FromRows(table, catalog.PlatformSteam, "USD")
	expected := []catalog.Listing{
		catalog.NewListing("Hollow Knight", catalog.PlatformSteam, "USD", 1499, 749),
		catalog.NewListing("Celeste", catalog.PlatformSteam, "USD", 1999, 499),
		catalog.NewListing("Terraria", catalog.PlatformSteam, "USD", 374, 374),
	}
	if diff := cmp.Diff(expected, result.Listings); diff != "" {
		t.Fatalf("listings mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, result.Duplicates)
	require.Equal(t, 2, result.Skipped())

	categories := map[string]catalog.Category{}
	for _, a := range result.Anomalies {
		categories[a.Item] = a.Category
	}
	require.Equal(t, map[string]catalog.Category{
		"line 6":     catalog.CategoryParse,
		"Broken Row": catalog.CategoryValidation,
	}, categories)
}

func TestSplitColumns(t *testing.T) {
	input := "title;original_price;special_price\n" +
		"Tetris 99;\"1.234,50 €\";\"617,25 €\"\n" +
		"Price Glitch;10.00;12.00\n" +
		"Negative;10.00;-1.00\n"

	table, err := ReadTable(strings.NewReader(input))
	require.NoError(t, err)
	require.False(t, table.Combined())

	result := FromRows(table, catalog.PlatformSteam, "USD")
	require.Len(t, result.Listings, 2)

	tetris := result.Listings[0]
	require.Equal(t, "EUR", tetris.Currency)
	require.EqualValues(t, 123450, tetris.OriginalPrice)
	require.EqualValues(t, 61725, tetris.SpecialPrice)
	require.Equal(t, 50.0, tetris.DiscountPercent)

	glitch := result.Listings[1]
	require.True(t, glitch.Anomalous())
	require.Equal(t, -20.0, glitch.DiscountPercent)

	var flagged, skipped int
	for _, a := range result.Anomalies {
		switch a.Item {
		case "Price Glitch":
			require.True(t, errors.Is(a.Err, catalog.ErrPriceInversion))
			require.Equal(t, catalog.CategoryAnomaly, a.Category)
			flagged++
		case "Negative":
			require.Equal(t, catalog.CategoryValidation, a.Category)
			skipped++
		}
	}
	require.Equal(t, 1, flagged)
	require.Equal(t, 1, skipped)
	require.Equal(t, 1, result.Skipped())
}

func TestTabularPriceWithCurrencyMarker(t *testing.T) {
	table, err := ReadTable(strings.NewReader("Game\tPrice\nStardew Valley\tUS$ 3.74\n"))
	require.NoError(t, err)

	result := FromRows(table, catalog.PlatformSteam, "AUD")
	require.Len(t, result.Listings, 1)
	require.Equal(t, "USD", result.Listings[0].Currency)
	require.EqualValues(t, 374, result.Listings[0].SpecialPrice)
	require.EqualValues(t, 374, result.Listings[0].OriginalPrice)
	require.Equal(t, 0.0, result.Listings[0].DiscountPercent)
}

func TestMissingColumns(t *testing.T) {
	for _, input := range []string{
		"",
		"title,original_price\nA,1.00\n",
		"name,score\nA,10\n",
		"original_price,special_price\n1.00,0.50\n",
	} {
		_, err := ReadTable(strings.NewReader(input))
		require.ErrorIs(t, err, ErrMissingColumns, input)
	}
}

func TestSplitCombined(t *testing.T) {
	cases := []struct {
		cell              string
		special, original string
	}{
		{cell: "$3.74 ($14.99)", special: "$3.74", original: "$14.99"},
		{cell: " $0.99 ( $9.99 ) ", special: "$0.99", original: "$9.99"},
		{cell: "$5.00", special: "$5.00", original: "$5.00"},
	}
	for _, c := range cases {
		special, original := SplitCombined(c.cell)
		require.Equal(t, c.special, special, c.cell)
		require.Equal(t, c.original, original, c.cell)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []catalog.Listing{
		{Title: "  Super   Mario Odyssey ", Platform: catalog.PlatformNintendo, Currency: "aud", OriginalPrice: 8995, SpecialPrice: 4497},
		{Title: "Super Mario Odyssey", Platform: catalog.PlatformNintendo, Currency: "AUD", OriginalPrice: 8995, SpecialPrice: 4497},
		{Title: "Super Mario Odyssey", Platform: catalog.PlatformSteam, Currency: "USD", OriginalPrice: 5999, SpecialPrice: 2999},
		{Title: "Inverted", Platform: catalog.PlatformNintendo, Currency: "AUD", OriginalPrice: 100, SpecialPrice: 200},
		{Title: "   ", Platform: catalog.PlatformNintendo, Currency: "AUD", OriginalPrice: 100, SpecialPrice: 50},
	}

	once := Normalize(raw)
	require.Len(t, once.Listings, 3)
	require.Equal(t, 1, once.Duplicates)
	require.Equal(t, "Super Mario Odyssey", once.Listings[0].Title)
	require.Equal(t, "AUD", once.Listings[0].Currency)
	require.Equal(t, 50.01, once.Listings[0].DiscountPercent)

	twice := Normalize(once.Listings)
	if diff := cmp.Diff(once.Listings, twice.Listings); diff != "" {
		t.Fatalf("normalization is not idempotent (-once +twice):\n%s", diff)
	}
	require.Equal(t, 0, twice.Duplicates)
	require.Equal(t, 0, twice.Skipped())
}
