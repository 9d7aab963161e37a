package analytics

import "fmt"

// FormatRate renders num/den as a percentage with one decimal place.
// A zero (or negative) denominator yields "0%".
func FormatRate(num, den int) string {
	if den <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(num)/float64(den)*100)
}
