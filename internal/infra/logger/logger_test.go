package logger

import "testing"

func TestMaskIP(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4", "203.0.113.5", "203.0.*.*"},
		{"ipv4 mapped", "::ffff:203.0.113.5", "203.0.*.*"},
		{"ipv6", "2001:db8:85a3::8a2e:370:7334", "2001:0db8:85a3:0000:*:*:*:*"},
		{"ipv6 loopback", "::1", "0000:0000:0000:0000:*:*:*:*"},
		{"not an address", "jdoe@example.com", "***"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskIP(tc.in); got != tc.want {
				t.Fatalf("MaskIP(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMaskString(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"long value", "secret123", "se***23"},
		{"short value", "abcd", "***"},
		{"multibyte runes", "пароль123", "па***23"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskString(tc.in); got != tc.want {
				t.Fatalf("MaskString(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
