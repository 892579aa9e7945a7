package forecast

// Model geometry. The sequence model always sees LookbackDays timesteps of
// FeatureCount features and emits ForecastDays probabilities.
const (
	LookbackDays = 30
	ForecastDays = 7
	FeatureCount = 7
)

// Defaults applied when a record is missing the corresponding field.
const (
	DefaultFamilySize   = 4
	defaultCylinderKg   = 13
	defaultIntervalDays = 30
)

// Fixed normalization divisors. These are part of the model contract and must
// match the values the model was trained with, not be derived from data.
const (
	daysNorm     = 100.0
	sizeNorm     = 50.0
	weekdayNorm  = 7.0
	weekNorm     = 5.0
	monthNorm    = 12.0
	familyNorm   = 10.0
	intervalNorm = 100.0
)

var cylinderSizeKg = map[string]float64{
	"6kg":  6,
	"13kg": 13,
	"50kg": 50,
}

// ExtractFeatures turns a customer's chronologically ordered history into one
// feature vector per order:
//
//	0: days since the previous order (0 for the first)
//	1: cylinder size in kg
//	2: day of week, Monday = 0
//	3: week of month, 1-5
//	4: calendar month, 1-12
//	5: family size estimate
//	6: rolling mean of the 3 most recent inter-order intervals
//
// each divided by its fixed normalization constant.
func ExtractFeatures(c Customer) [][]float64 {
	familySize := c.FamilySize
	if familySize <= 0 {
		familySize = DefaultFamilySize
	}

	features := make([][]float64, 0, len(c.Orders))
	for i, order := range c.Orders {
		daysSinceLast := 0
		if i > 0 {
			daysSinceLast = order.Date.DaysSince(c.Orders[i-1].Date)
		}

		sizeKg, ok := cylinderSizeKg[order.CylinderSize]
		if !ok {
			sizeKg = defaultCylinderKg
		}

		dayOfWeek := mondayWeekday(order.Date)
		weekOfMonth := (order.Date.Day()-1)/7 + 1
		month := int(order.Date.Month())

		avgInterval := float64(defaultIntervalDays)
		if i >= 3 {
			total := 0
			for j := i - 3; j < i; j++ {
				total += c.Orders[j+1].Date.DaysSince(c.Orders[j].Date)
			}
			avgInterval = float64(total) / 3
		}

		features = append(features, []float64{
			float64(daysSinceLast) / daysNorm,
			sizeKg / sizeNorm,
			float64(dayOfWeek) / weekdayNorm,
			float64(weekOfMonth) / weekNorm,
			float64(month) / monthNorm,
			float64(familySize) / familyNorm,
			avgInterval / intervalNorm,
		})
	}
	return features
}

// mondayWeekday maps time.Weekday (Sunday = 0) to the Monday = 0 convention
// the model was trained with.
func mondayWeekday(d Date) int {
	return (int(d.Weekday()) + 6) % 7
}
