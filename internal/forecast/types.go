// Package forecast predicts when a customer will place their next LPG refill
// order from the timing of their past orders. A small stack of temporal
// features is extracted per historical order, padded into a fixed 30-step
// window and fed to a sequence model that emits one order probability for
// each of the next 7 days.
package forecast

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date. It marshals as "2006-01-02" and accepts both that
// layout and RFC 3339 timestamps when unmarshalling.
type Date struct {
	time.Time
}

// NewDate returns the given calendar date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "2006-01-02" or RFC 3339 string.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of whole days between other and d.
func (d Date) DaysSince(other Date) int {
	return int(d.Time.Sub(other.Time).Hours() / 24)
}

// Order is a single historical cylinder order.
type Order struct {
	Date         Date   `json:"date"`
	CylinderSize string `json:"cylinder_size"`
}

// Customer carries a chronologically ordered refill history plus a family
// size estimate used as a demand proxy.
type Customer struct {
	CustomerID string  `json:"customer_id"`
	FamilySize int     `json:"family_size"`
	Orders     []Order `json:"orders"`
}

// ForecastDay is the order probability for a single day after the customer's
// last order.
type ForecastDay struct {
	Date        Date    `json:"date"`
	Probability float64 `json:"probability"`
	DayOffset   int     `json:"day_offset"`
}

// UsagePattern classifies a customer's refill cadence from inter-order
// interval statistics.
type UsagePattern struct {
	Pattern              string   `json:"pattern"`
	AvgDaysBetweenOrders *float64 `json:"avg_days_between_orders"`
	StdDays              *float64 `json:"std_days,omitempty"`
	Consistency          string   `json:"consistency"`
	TotalOrders          int      `json:"total_orders,omitempty"`
}

// Recommendation is the follow-up action derived from the forecast.
type Recommendation struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Urgency string `json:"urgency"`
}

// Prediction is the full forecast result for one customer. When prediction
// fails, Error is set and only CustomerID and Timestamp are meaningful.
type Prediction struct {
	CustomerID         string          `json:"customer_id"`
	LastOrderDate      Date            `json:"last_order_date,omitempty"`
	PredictedOrderDate Date            `json:"predicted_order_date,omitempty"`
	Confidence         float64         `json:"confidence,omitempty"`
	Forecast           []ForecastDay   `json:"forecast,omitempty"`
	UsagePattern       *UsagePattern   `json:"usage_pattern,omitempty"`
	Recommendation     *Recommendation `json:"recommendation,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
	Error              string          `json:"error,omitempty"`
}
