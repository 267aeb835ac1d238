package util

import "strings"

// MaskIDNumber hides all but the last four characters of an identity
// document number for logs and responses.
func MaskIDNumber(idNumber string) string {
	runes := []rune(idNumber)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
