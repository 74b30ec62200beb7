package match

import (
	"math"
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{
			name: "identical keys",
			a:    "movie club",
			b:    "movie club",
			min:  1.0,
			max:  1.0,
		},
		{
			name: "empty candidate",
			a:    "",
			b:    "movie club",
			min:  0.0,
			max:  0.0,
		},
		{
			name: "stop word suffix scores high but below exact",
			a:    "movie club official",
			b:    "movie club",
			min:  0.6,
			max:  0.85,
		},
		{
			name: "single char typo scores moderately",
			a:    "movie club",
			b:    "movie clob",
			min:  0.6,
			max:  0.85,
		},
		{
			name: "unrelated names",
			a:    "movie club",
			b:    "crypto signals",
			min:  0.0,
			max:  0.5,
		},
		{
			name: "shared word only",
			a:    "movie club",
			b:    "book club",
			min:  0.0,
			max:  0.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Score(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestScoreSymmetricEquality(t *testing.T) {
	if got := Score("abc", "abc"); got != 1.0 {
		t.Errorf("Score of equal keys = %v, want exactly 1.0", got)
	}
}

func TestFindMatch(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		known     []string
		threshold float64
		wantKey   string
		wantOK    bool
	}{
		{
			name:      "exact match",
			candidate: "movie club",
			known:     []string{"series zone", "movie club"},
			threshold: DefaultThreshold,
			wantKey:   "movie club",
			wantOK:    true,
		},
		{
			name:      "no known keys",
			candidate: "movie club",
			known:     nil,
			threshold: DefaultThreshold,
			wantOK:    false,
		},
		{
			name:      "below threshold",
			candidate: "movie club",
			known:     []string{"crypto signals"},
			threshold: DefaultThreshold,
			wantOK:    false,
		},
		{
			name:      "near duplicate matches at lower threshold",
			candidate: "movie club official",
			known:     []string{"movie club"},
			threshold: 0.7,
			wantKey:   "movie club",
			wantOK:    true,
		},
		{
			name:      "first seen wins on tie",
			candidate: "movie club",
			known:     []string{"movie club", "movie club"},
			threshold: DefaultThreshold,
			wantKey:   "movie club",
			wantOK:    true,
		},
		{
			name:      "highest score wins",
			candidate: "movie club",
			known:     []string{"movie clubs hd", "movie club"},
			threshold: 0.5,
			wantKey:   "movie club",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotKey, gotOK := FindMatch(tt.candidate, tt.known, tt.threshold)
			if gotOK != tt.wantOK {
				t.Fatalf("FindMatch() ok = %v, want %v", gotOK, tt.wantOK)
			}

			if gotOK && gotKey != tt.wantKey {
				t.Errorf("FindMatch() key = %q, want %q", gotKey, tt.wantKey)
			}
		})
	}
}

func TestFindMatchPure(t *testing.T) {
	known := []string{"movie club", "series zone"}

	FindMatch("movie club", known, DefaultThreshold)

	if known[0] != "movie club" || known[1] != "series zone" {
		t.Error("FindMatch mutated the known keys slice")
	}
}

func TestRatioBounds(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"abc", "abc"},
		{"", ""},
		{"short", "a much longer key entirely"},
	}

	for _, p := range pairs {
		r := ratio(p[0], p[1])
		if r < 0 || r > 1 || math.IsNaN(r) {
			t.Errorf("ratio(%q, %q) = %v, want in [0,1]", p[0], p[1], r)
		}
	}
}
