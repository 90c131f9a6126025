package utils

import "fmt"

// FormatTimestamp renders seconds as MM:SS for audio source attribution.
// Negative values are clamped to 00:00.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
