package source

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		wantKey string
		wantErr error
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", nil},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", nil},
		{"youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ", nil},
		{"https://youtube.com/embed/abcdefghijk", "abcdefghijk", nil},
		{"https://www.youtube.com/shorts/A1b2C3d4E5f", "A1b2C3d4E5f", nil},
		{"https://vimeo.com/12345", "", ErrInvalidURL},
		{"   ", "", ErrInvalidURL},
		{"https://youtu.be/short", "", ErrNoContentKey},
	}
	for _, tc := range cases {
		ref, err := Parse(tc.raw)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Parse(%q): expected %v, got %v", tc.raw, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.raw, err)
			continue
		}
		if ref.ContentKey != tc.wantKey {
			t.Errorf("Parse(%q) key = %q, want %q", tc.raw, ref.ContentKey, tc.wantKey)
		}
	}
}

func TestParseAddsScheme(t *testing.T) {
	ref, err := Parse("youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.URL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("unexpected URL %q", ref.URL)
	}
}
