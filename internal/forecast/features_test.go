package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleCustomer() Customer {
	return Customer{
		CustomerID: "CUST123",
		FamilySize: 4,
		Orders: []Order{
			{Date: NewDate(2024, time.January, 15), CylinderSize: "13kg"},
			{Date: NewDate(2024, time.February, 10), CylinderSize: "13kg"},
			{Date: NewDate(2024, time.March, 5), CylinderSize: "13kg"},
			{Date: NewDate(2024, time.March, 28), CylinderSize: "13kg"},
		},
	}
}

func TestExtractFeatures(t *testing.T) {
	features := ExtractFeatures(exampleCustomer())
	require.Len(t, features, 4)
	for _, row := range features {
		require.Len(t, row, FeatureCount)
	}

	t.Run("days since last order", func(t *testing.T) {
		assert.Zero(t, features[0][0], "first order has no previous order")
		assert.InDelta(t, 26.0/100, features[1][0], 1e-9)
		assert.InDelta(t, 24.0/100, features[2][0], 1e-9)
		assert.InDelta(t, 23.0/100, features[3][0], 1e-9)
	})

	t.Run("cylinder size", func(t *testing.T) {
		assert.InDelta(t, 13.0/50, features[0][1], 1e-9)
	})

	t.Run("temporal features", func(t *testing.T) {
		// 2024-01-15 is a Monday in week 3 of January.
		assert.InDelta(t, 0.0/7, features[0][2], 1e-9)
		assert.InDelta(t, 3.0/5, features[0][3], 1e-9)
		assert.InDelta(t, 1.0/12, features[0][4], 1e-9)
	})

	t.Run("family size", func(t *testing.T) {
		assert.InDelta(t, 4.0/10, features[0][5], 1e-9)
	})

	t.Run("rolling interval", func(t *testing.T) {
		// Fewer than 3 prior intervals falls back to the 30-day default.
		assert.InDelta(t, 30.0/100, features[0][6], 1e-9)
		assert.InDelta(t, 30.0/100, features[1][6], 1e-9)
		assert.InDelta(t, 30.0/100, features[2][6], 1e-9)
		// Fourth order sees intervals 26, 24, 23.
		assert.InDelta(t, (26.0+24+23)/3/100, features[3][6], 1e-9)
	})
}

func TestExtractFeaturesDefaults(t *testing.T) {
	t.Run("unrecognized cylinder size maps to 13kg", func(t *testing.T) {
		c := Customer{Orders: []Order{{Date: NewDate(2024, time.May, 1), CylinderSize: "25kg"}}}
		features := ExtractFeatures(c)
		require.Len(t, features, 1)
		assert.InDelta(t, 13.0/50, features[0][1], 1e-9)
	})

	t.Run("missing family size defaults to 4", func(t *testing.T) {
		c := Customer{Orders: []Order{{Date: NewDate(2024, time.May, 1), CylinderSize: "6kg"}}}
		features := ExtractFeatures(c)
		require.Len(t, features, 1)
		assert.InDelta(t, 4.0/10, features[0][5], 1e-9)
	})

	t.Run("sunday maps to 6", func(t *testing.T) {
		// 2024-05-05 is a Sunday.
		c := Customer{Orders: []Order{{Date: NewDate(2024, time.May, 5), CylinderSize: "6kg"}}}
		features := ExtractFeatures(c)
		assert.InDelta(t, 6.0/7, features[0][2], 1e-9)
	})

	t.Run("no orders", func(t *testing.T) {
		assert.Empty(t, ExtractFeatures(Customer{}))
	})
}
