package forecast

import "math"

// Pattern and consistency labels produced by AnalyzeUsagePattern.
const (
	PatternHeavyUser        = "heavy_user"
	PatternRegularUser      = "regular_user"
	PatternLightUser        = "light_user"
	PatternInsufficientData = "insufficient_data"

	ConsistencyVeryConsistent = "very_consistent"
	ConsistencyConsistent     = "consistent"
	ConsistencyVariable       = "variable"
	ConsistencyUnknown        = "unknown"
)

// AnalyzeUsagePattern classifies a customer's refill cadence from the mean
// and population standard deviation of inter-order intervals. Customers with
// fewer than two orders have no intervals and are reported as
// insufficient_data.
func AnalyzeUsagePattern(c Customer) UsagePattern {
	if len(c.Orders) < 2 {
		return UsagePattern{
			Pattern:     PatternInsufficientData,
			Consistency: ConsistencyUnknown,
		}
	}

	intervals := make([]float64, 0, len(c.Orders)-1)
	for i := 1; i < len(c.Orders); i++ {
		intervals = append(intervals, float64(c.Orders[i].Date.DaysSince(c.Orders[i-1].Date)))
	}

	mean := meanOf(intervals)
	std := stddevOf(intervals, mean)

	var consistency string
	switch ratio := std / mean; {
	case ratio < 0.2:
		consistency = ConsistencyVeryConsistent
	case ratio < 0.4:
		consistency = ConsistencyConsistent
	default:
		consistency = ConsistencyVariable
	}

	var pattern string
	switch {
	case mean < 15:
		pattern = PatternHeavyUser
	case mean < 30:
		pattern = PatternRegularUser
	default:
		pattern = PatternLightUser
	}

	avg := round1(mean)
	stdRounded := round1(std)
	return UsagePattern{
		Pattern:              pattern,
		AvgDaysBetweenOrders: &avg,
		StdDays:              &stdRounded,
		Consistency:          consistency,
		TotalOrders:          len(c.Orders),
	}
}

func meanOf(vs []float64) float64 {
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total / float64(len(vs))
}

func stddevOf(vs []float64, mean float64) float64 {
	total := 0.0
	for _, v := range vs {
		d := v - mean
		total += d * d
	}
	return math.Sqrt(total / float64(len(vs)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
