package filters

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/models"
)

func validationField(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Field
}

func TestNormalize_Defaults(t *testing.T) {
	c, err := Normalize(models.KindDwelling, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, DefaultLimit, c.Limit)
	assert.Equal(t, "createdAt", c.SortBy)
	assert.Equal(t, "desc", c.SortOrder)
	assert.Equal(t, "active", c.Status)
	assert.Empty(t, c.Values)
}

func TestNormalize_CoercesTypedValues(t *testing.T) {
	c, err := Normalize(models.KindDwelling, url.Values{
		"category":  {"Sale"},
		"priceMax":  {"100000"},
		"bedrooms":  {"2"},
		"furnished": {"true"},
		"location":  {"  Kilimani "},
		"page":      {"2"},
		"limit":     {"24"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sale", c.Values["category"])
	assert.Equal(t, int64(100000), c.Values["priceMax"])
	assert.Equal(t, int64(2), c.Values["bedrooms"])
	assert.Equal(t, true, c.Values["furnished"])
	assert.Equal(t, "Kilimani", c.Values["location"])
	assert.Equal(t, 2, c.Page)
	assert.Equal(t, 24, c.Limit)
	assert.Equal(t, 24, c.Offset())
}

func TestNormalize_DropsUnknownAndEmpty(t *testing.T) {
	c, err := Normalize(models.KindVehicle, url.Values{
		"bedrooms": {"3"}, // not a vehicle filter
		"make":     {""},
		"colour":   {"red"},
	})
	require.NoError(t, err)
	assert.Empty(t, c.Values)
}

func TestNormalize_Errors(t *testing.T) {
	cases := []struct {
		name  string
		kind  models.Kind
		raw   url.Values
		field string
	}{
		{"non numeric price", models.KindDwelling, url.Values{"priceMin": {"cheap"}}, "priceMin"},
		{"negative bedrooms", models.KindDwelling, url.Values{"bedrooms": {"-1"}}, "bedrooms"},
		{"page zero", models.KindParcel, url.Values{"page": {"0"}}, "page"},
		{"limit zero", models.KindParcel, url.Values{"limit": {"0"}}, "limit"},
		{"bad enum", models.KindVehicle, url.Values{"fuelType": {"steam"}}, "fuelType"},
		{"bad bool", models.KindDwelling, url.Values{"furnished": {"maybe"}}, "furnished"},
		{"bad status", models.KindDwelling, url.Values{"status": {"archived"}}, "status"},
		{"inverted price range", models.KindDwelling, url.Values{"priceMin": {"500"}, "priceMax": {"100"}}, "priceMin"},
		{"inverted year range", models.KindVehicle, url.Values{"yearMin": {"2020"}, "yearMax": {"2010"}}, "yearMin"},
		{"bad float", models.KindParcel, url.Values{"areaMin": {"NaN"}}, "areaMin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.kind, tc.raw)
			assert.Equal(t, tc.field, validationField(t, err))
		})
	}
}

func TestNormalize_UnknownKind(t *testing.T) {
	_, err := Normalize(models.Kind("boat"), url.Values{})
	assert.Equal(t, "kind", validationField(t, err))
}

func TestNormalize_LimitClamped(t *testing.T) {
	c, err := Normalize(models.KindDwelling, url.Values{"limit": {"500"}})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, c.Limit)
}

func TestNormalize_SortFallbacks(t *testing.T) {
	c, err := Normalize(models.KindVehicle, url.Values{"sortBy": {"bedrooms"}, "sortOrder": {"sideways"}})
	require.NoError(t, err)
	assert.Equal(t, "createdAt", c.SortBy)
	assert.Equal(t, "desc", c.SortOrder)

	c, err = Normalize(models.KindVehicle, url.Values{"sortBy": {"mileage"}, "sortOrder": {"ASC"}})
	require.NoError(t, err)
	assert.Equal(t, "mileage", c.SortBy)
	assert.Equal(t, "asc", c.SortOrder)
}

func TestNormalize_Status(t *testing.T) {
	c, err := Normalize(models.KindParcel, url.Values{"status": {"all"}})
	require.NoError(t, err)
	assert.Equal(t, "", c.Status)

	c, err = Normalize(models.KindParcel, url.Values{"status": {"sold"}})
	require.NoError(t, err)
	assert.Equal(t, "sold", c.Status)
}

func TestNormalize_Search(t *testing.T) {
	c, err := Normalize(models.KindDwelling, url.Values{"search": {" a "}})
	require.NoError(t, err)
	assert.Empty(t, c.Search)

	// decomposed "cafe" + combining acute is composed to NFC
	c, err = Normalize(models.KindDwelling, url.Values{"search": {"cafe\u0301"}})
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", c.Search)
}

func TestParams_RoundTrip(t *testing.T) {
	raw := map[string]string{
		"category":  "rent",
		"bedrooms":  "3",
		"sortBy":    "price",
		"sortOrder": "asc",
		"status":    "all",
		"search":    "garden",
		"limit":     "20",
	}
	c, err := NormalizeMap(models.KindDwelling, raw)
	require.NoError(t, err)

	again, err := NormalizeMap(models.KindDwelling, c.Params())
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestParams_OmitsDefaults(t *testing.T) {
	assert.Empty(t, Default(models.KindVehicle).Params())

	q := Default(models.KindVehicle).WithPage(3).Query()
	assert.Equal(t, "3", q.Get("page"))
}

func TestCacheKey_OrderIndependent(t *testing.T) {
	a := map[string]string{"priceMax": "100000", "bedrooms": "2", "category": "sale"}
	b := map[string]string{"category": "sale", "bedrooms": "2", "priceMax": "100000"}
	assert.Equal(t, CacheKey(models.KindDwelling, 1, a), CacheKey(models.KindDwelling, 1, b))
	assert.Equal(t, "dwelling|1|bedrooms=2&category=sale&priceMax=100000", CacheKey(models.KindDwelling, 1, a))
	assert.NotEqual(t, CacheKey(models.KindDwelling, 1, a), CacheKey(models.KindDwelling, 2, a))
}

func TestCacheKey_EquivalentCriteriaCollide(t *testing.T) {
	x, err := NormalizeMap(models.KindDwelling, map[string]string{"bedrooms": "02", "sortBy": "unknown", "status": "active"})
	require.NoError(t, err)
	y, err := NormalizeMap(models.KindDwelling, map[string]string{"bedrooms": "2"})
	require.NoError(t, err)
	assert.Equal(t, x.CacheKey(), y.CacheKey())
}

func TestStableSerialize_EscapesAndSkipsEmpty(t *testing.T) {
	got := StableSerialize(map[string]string{"search": "a&b c", "make": ""})
	assert.Equal(t, "search=a%26b+c", got)
}
