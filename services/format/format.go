// Package format renders chat text with IRC control codes.
package format

import (
	"fmt"
	"regexp"
)

const (
	bold  = "\x02"
	color = "\x03"
	reset = "\x0f"

	lightGreen = "09"
	lightRed   = "04"
)

var controlCodes = regexp.MustCompile(`\x03(\d{1,2}(,\d{1,2})?)?|[\x02\x0f\x11\x16\x1d\x1e\x1f]`)

// Bold wraps s in bold markers
func Bold(s string) string {
	return bold + s + bold
}

// Percent renders a signed percentage with two decimals, green when non-negative and red otherwise
func Percent(percentage float64) string {
	message := fmt.Sprintf("%+.2f%%", percentage)
	if percentage >= 0 {
		return color + lightGreen + message + reset
	}
	return color + lightRed + message + reset
}

// Strip removes IRC formatting codes
func Strip(s string) string {
	return controlCodes.ReplaceAllString(s, "")
}
