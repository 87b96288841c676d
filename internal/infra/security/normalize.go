package security

import (
	"sort"
	"strings"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

// leetSubstitutions maps common symbol and digit substitutions back to the
// letters they stand in for. Reversal runs after lowercasing.
var leetSubstitutions = map[rune]rune{
	'@': 'a',
	'4': 'a',
	'8': 'b',
	'3': 'e',
	'!': 'i',
	'1': 'l',
	'0': 'o',
	'$': 's',
	'5': 's',
	'7': 't',
	'+': 't',
}

// candidateForms returns the distinct normalized views of a password used for
// dictionary lookups: the lowercased value, the value with trailing digits
// stripped, and the stripped value with substitutions reversed. Checking every
// form catches mutations like "P@ssw0rd123" of plain dictionary words.
func candidateForms(password string) []string {
	lowered := strings.ToLower(password)
	stripped := strings.TrimRight(lowered, "0123456789")

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if mapped, ok := leetSubstitutions[r]; ok {
			b.WriteRune(mapped)
			continue
		}
		b.WriteRune(r)
	}
	substituted := b.String()

	forms := []string{lowered}
	if stripped != lowered {
		forms = append(forms, stripped)
	}
	if substituted != stripped && substituted != lowered {
		forms = append(forms, substituted)
	}
	return forms
}

// personalTokens derives the profile fragments a password must not contain:
// the username and its separator-delimited parts, display name words, the
// email local part and domain labels, and phone digit runs. Fragments shorter
// than minLen are dropped and everything is lowercased.
func personalTokens(pctx domain.PasswordContext, minLen int) []string {
	seen := make(map[string]struct{})
	add := func(raw string) {
		token := strings.ToLower(strings.TrimSpace(raw))
		if len(token) < minLen {
			return
		}
		seen[token] = struct{}{}
	}

	add(pctx.Username)
	for _, part := range strings.FieldsFunc(pctx.Username, isTokenSeparator) {
		add(part)
	}
	for _, part := range strings.Fields(pctx.DisplayName) {
		add(part)
	}
	if at := strings.IndexByte(pctx.Email, '@'); at > 0 {
		add(pctx.Email[:at])
		for _, label := range strings.Split(pctx.Email[at+1:], ".") {
			add(label)
		}
	} else {
		add(pctx.Email)
	}
	if pctx.Phone != nil {
		for _, run := range digitRuns(*pctx.Phone) {
			add(run)
		}
	}

	tokens := make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func isTokenSeparator(r rune) bool {
	switch r {
	case '.', '_', '-', '+':
		return true
	}
	return false
}

// digitRuns returns every run of consecutive digits in s plus the
// concatenation of all digits, so both "555" and "15550100" are caught for a
// phone number written as "+1 555 0100".
func digitRuns(s string) []string {
	runs := make([]string, 0, 4)
	var current, all strings.Builder
	flush := func() {
		if current.Len() > 0 {
			runs = append(runs, current.String())
			current.Reset()
		}
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			current.WriteRune(r)
			all.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	if all.Len() > 0 {
		concat := all.String()
		if len(runs) != 1 || runs[0] != concat {
			runs = append(runs, concat)
		}
	}
	return runs
}
