// Package vision scores photographs of LPG cylinders for visible safety
// defects. A learned classifier produces the verdict; a color-analysis rust
// heuristic and a placeholder expiry check are reported alongside it as
// informational metadata and never override the classifier.
package vision

import "time"

// Issue is a defect class the classifier can report.
type Issue string

const (
	IssueSafe        Issue = "safe"
	IssueRust        Issue = "rust"
	IssueDent        Issue = "dent"
	IssueValveDamage Issue = "valve_damage"
	IssueExpired     Issue = "expired"
	IssueLeaking     Issue = "leaking"
)

// Classes lists the defect classes in model output order.
var Classes = []Issue{
	IssueSafe,
	IssueRust,
	IssueDent,
	IssueValveDamage,
	IssueExpired,
	IssueLeaking,
}

// severityLevels statically ranks each issue's safety urgency from 0 (no
// issue) to 5 (immediate danger).
var severityLevels = map[Issue]int{
	IssueSafe:        0,
	IssueRust:        2,
	IssueDent:        3,
	IssueValveDamage: 4,
	IssueExpired:     5,
	IssueLeaking:     5,
}

var recommendations = map[Issue]string{
	IssueSafe:        "Cylinder is in good condition. Safe to use.",
	IssueRust:        "Minor rust detected. Monitor condition. Replace if rust increases.",
	IssueDent:        "Physical damage detected. Do not use. Return for inspection.",
	IssueValveDamage: "Valve damage detected. CRITICAL - Do not use. Replace immediately.",
	IssueExpired:     "Cylinder has expired. Do not refill. Return for exchange.",
	IssueLeaking:     "DANGER - Leakage detected. Turn off valve, ventilate area, call support immediately.",
}

// SeverityLevel returns the static severity ranking for an issue.
func SeverityLevel(issue Issue) int {
	return severityLevels[issue]
}

func recommendationFor(issue Issue) string {
	if msg, ok := recommendations[issue]; ok {
		return msg
	}
	return "Unknown issue. Contact support."
}

// Detection is one (issue, confidence, severity) entry from the classifier.
type Detection struct {
	Issue      Issue   `json:"issue"`
	Confidence float64 `json:"confidence"`
	Severity   int     `json:"severity"`
}

// RustAnalysis is the supplementary color-analysis verdict.
type RustAnalysis struct {
	Detected bool   `json:"detected"`
	Method   string `json:"method"`
}

// ExpiryAnalysis is the expiry-date check result. The current implementation
// is a fixed placeholder; see detectExpiry.
type ExpiryAnalysis struct {
	Expired    bool    `json:"expired"`
	ExpiryDate *string `json:"expiry_date"`
	Confidence float64 `json:"confidence"`
}

// Report is the full result of scanning one cylinder image. A failed scan
// sets Error and Timestamp only.
type Report struct {
	Timestamp      time.Time       `json:"timestamp"`
	ImagePath      string          `json:"image_path,omitempty"`
	PrimaryIssue   Issue           `json:"primary_issue,omitempty"`
	Confidence     float64         `json:"confidence"`
	SeverityLevel  int             `json:"severity_level"`
	AllDetections  []Detection     `json:"all_detections,omitempty"`
	RustAnalysis   *RustAnalysis   `json:"rust_analysis,omitempty"`
	ExpiryAnalysis *ExpiryAnalysis `json:"expiry_analysis,omitempty"`
	IsSafe         bool            `json:"is_safe"`
	Recommendation string          `json:"recommendation,omitempty"`
	Error          string          `json:"error,omitempty"`
}
