package plate

import "unicode/utf8"

// AdaptiveThreshold returns the minimum similarity required to treat a reading
// of n normalized characters as an existing plate. Short plates leave less
// room for error so they need a closer match.
func AdaptiveThreshold(n int) float64 {
	switch {
	case n <= 4:
		return 90
	case n <= 6:
		return 85
	case n <= 8:
		return 80
	default:
		return 75
	}
}

// ThresholdFor is AdaptiveThreshold applied to the normalized length of text.
func ThresholdFor(text string) float64 {
	return AdaptiveThreshold(utf8.RuneCountInString(Normalize(text)))
}
