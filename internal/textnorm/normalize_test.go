package textnorm

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"This is fine", "this is fine"},
		{"  You're an IDIOT!!!  ", "youre an idiot"},
		{"a ! b", "a b"},
		{"a!b", "ab"},
		{"line\none\ttwo\r\nthree", "line one two three"},
		{"12345 !!! ???", ""},
		{"", ""},
		{"   ", ""},
		{"Café déjà vu", "caf dj vu"},
		{"non breaking", "non breaking"},
		{"tab\x1fsep", "tab sep"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	f := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeAlphabet(t *testing.T) {
	f := func(s string) bool {
		return wellFormed(Normalize(s))
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func FuzzNormalize(f *testing.F) {
	for _, seed := range []string{"This is fine", " \t\n", "ÀÉÎ õü", "x y", "a  b  c "} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		out := Normalize(s)
		if !wellFormed(out) {
			t.Fatalf("Normalize(%q) = %q is not well formed", s, out)
		}
		if Normalize(out) != out {
			t.Fatalf("Normalize is not idempotent for %q", s)
		}
	})
}

// wellFormed reports whether s holds only a-z and single inner spaces.
func wellFormed(s string) bool {
	if strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") || strings.Contains(s, "  ") {
		return false
	}
	for _, r := range s {
		if r != ' ' && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
