package vision

// detectExpiry would read the stamped expiry date off the cylinder collar.
// There is no OCR integration yet, so this is a fixed placeholder that
// always reports "not expired, no date found, zero confidence".
func detectExpiry() *ExpiryAnalysis {
	return &ExpiryAnalysis{
		Expired:    false,
		ExpiryDate: nil,
		Confidence: 0,
	}
}
