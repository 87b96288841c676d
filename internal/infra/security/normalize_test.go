package security

import (
	"slices"
	"testing"

	"github.com/arklim/social-platform-authguard/internal/core/domain"
)

func TestCandidateForms(t *testing.T) {
	forms := candidateForms("P@ssw0rd123")

	if forms[0] != "p@ssw0rd123" {
		t.Fatalf("expected lowered form first, got %q", forms[0])
	}
	if !slices.Contains(forms, "p@ssw0rd") {
		t.Fatalf("expected trailing digits stripped, got %v", forms)
	}
	if !slices.Contains(forms, "password") {
		t.Fatalf("expected substitutions reversed, got %v", forms)
	}
}

func TestCandidateFormsDeduplicates(t *testing.T) {
	forms := candidateForms("wildflower")
	if len(forms) != 1 || forms[0] != "wildflower" {
		t.Fatalf("expected single form for plain word, got %v", forms)
	}
}

func TestPersonalTokens(t *testing.T) {
	phone := "+1 555 0100"
	pctx := domain.PasswordContext{
		Username:    "j.doe",
		Email:       "jdoe@example.com",
		Phone:       &phone,
		DisplayName: "John Doe",
	}

	tokens := personalTokens(pctx, 4)

	for _, want := range []string{"j.doe", "jdoe", "john", "example", "0100", "15550100"} {
		if !slices.Contains(tokens, want) {
			t.Fatalf("expected token %q, got %v", want, tokens)
		}
	}
	for _, reject := range []string{"doe", "com", "555", "1"} {
		if slices.Contains(tokens, reject) {
			t.Fatalf("token %q below minimum length should be dropped: %v", reject, tokens)
		}
	}
}

func TestPersonalTokensEmptyContext(t *testing.T) {
	if tokens := personalTokens(domain.PasswordContext{}, 4); len(tokens) != 0 {
		t.Fatalf("expected no tokens for empty context, got %v", tokens)
	}
}

func TestDigitRuns(t *testing.T) {
	runs := digitRuns("+1 (555) 010-0199")

	for _, want := range []string{"555", "010", "0199", "15550100199"} {
		if !slices.Contains(runs, want) {
			t.Fatalf("expected run %q, got %v", want, runs)
		}
	}
}

func TestDigitRunsSingleRun(t *testing.T) {
	runs := digitRuns("5550100")
	if len(runs) != 1 || runs[0] != "5550100" {
		t.Fatalf("expected concatenation to dedupe against a single run, got %v", runs)
	}
}
