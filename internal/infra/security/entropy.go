package security

import (
	"math"
	"unicode"
)

// Character class sizes feeding the entropy charset estimate.
const (
	lowercaseClassSize = 26
	uppercaseClassSize = 26
	digitClassSize     = 10
	specialClassSize   = 32
)

// EstimateEntropyBits returns a deterministic entropy estimate in bits.
// The charset size is the sum of the sizes of every character class present
// in the candidate; repeated and stepwise runs of three or more characters
// contribute two effective characters regardless of run length, so
// "aaaaaaaa" and "abcdefgh" score far below a same-length random string.
// Appending characters never lowers the estimate.
func EstimateEntropyBits(password string) float64 {
	runes := []rune(password)
	if len(runes) == 0 {
		return 0
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	charset := 0
	if hasLower {
		charset += lowercaseClassSize
	}
	if hasUpper {
		charset += uppercaseClassSize
	}
	if hasDigit {
		charset += digitClassSize
	}
	if hasSpecial {
		charset += specialClassSize
	}

	effective := len(runes) - redundantRunExcess(runes)
	bits := float64(effective) * math.Log2(float64(charset))
	if bits < 0 {
		return 0
	}
	return bits
}

// redundantRunExcess counts the characters beyond the second in every maximal
// run of three or more repeated, ascending, or descending characters. Keeping
// two characters of credit per run makes the estimate monotonic: extending a
// run adds exactly as much excess as length, never more.
func redundantRunExcess(runes []rune) int {
	excess := 0
	i := 0
	for i < len(runes) {
		run := max(
			stepRunLength(runes, i, 0),
			stepRunLength(runes, i, 1),
			stepRunLength(runes, i, -1),
		)
		if run >= 3 {
			excess += run - 2
			i += run
			continue
		}
		i++
	}
	return excess
}

// stepRunLength returns the length of the run starting at start where each
// character differs from its predecessor by step code points.
func stepRunLength(runes []rune, start int, step rune) int {
	n := 1
	for i := start + 1; i < len(runes); i++ {
		if runes[i]-runes[i-1] != step {
			break
		}
		n++
	}
	return n
}
