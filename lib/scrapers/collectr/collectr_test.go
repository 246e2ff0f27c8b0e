package collectr

import (
	"os"
	"path/filepath"
	"testing"

	"allblue-backend/lib/catalog"

	"github.com/stretchr/testify/require"
)

func TestParseUSD(t *testing.T) {
	require.Equal(t, 1299.99, ParseUSD("$1,299.99"))
	require.Equal(t, 4.5, ParseUSD("$4.50"))
	require.Equal(t, 89.0, ParseUSD(" $89 "))
	require.Equal(t, 0.0, ParseUSD(""))
	require.Equal(t, 0.0, ParseUSD("Sold Out"))
}

func TestUsdToEur(t *testing.T) {
	require.Equal(t, 0.75, UsdToEur(1))
	require.Equal(t, 67.49, UsdToEur(89.99))
	require.Equal(t, 0.0, UsdToEur(0))
}

func TestCollectEntries(t *testing.T) {
	entries := collectEntries([]rawEntry{
		{Name: "OP-09 Booster Box", Price: "$89.99", Image: "https://img.example/op09.png"},
		{Name: "", Price: "$5.00"},
		{Name: "Unpriced Thing", Price: ""},
		{Name: "Unparsable", Price: "Sold Out"},
	})

	require.Equal(t, []Entry{
		{Name: "OP-09 Booster Box", USD: 89.99, EUR: 67.49, ImageUrl: "https://img.example/op09.png"},
	}, entries)
}

func TestSaveCatalogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed_collectr.json")

	err := SaveCatalog(path, "sealed", []Entry{
		{Name: "OP-09 Booster Box", USD: 89.99, EUR: 67.49, ImageUrl: "https://img.example/op09.png"},
	})
	require.NoError(t, err)

	// the written file must be readable by the catalog loader
	items, err := catalog.NewLoader().Load(path)
	require.NoError(t, err)
	require.Equal(t, []catalog.Item{
		{Name: "OP-09 Booster Box", UsdPrice: 89.99, EurPrice: 67.49, ImageUrl: "https://img.example/op09.png", Source: "collectr"},
	}, items)
}

func TestSaveCatalogRefusesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dons_collectr.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"don::A": {"usd": 1}}`), 0644))

	err := SaveCatalog(path, "don", nil)
	require.ErrorIs(t, err, ErrEmptyScrape)

	// previous good data untouched
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	require.JSONEq(t, `{"don::A": {"usd": 1}}`, string(data))
}
