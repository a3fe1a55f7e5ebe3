package preview

import (
	"errors"
	"testing"
)

func TestBudget(t *testing.T) {
	s := New(30, 128)
	if got := s.MaxBytes(); got != 480000 {
		t.Fatalf("MaxBytes = %d, want 480000", got)
	}

	tests := []struct {
		size int64
		want int64
	}{
		{0, 0},
		{1000, 1000},
		{480000, 480000},
		{5_000_000, 480000},
	}
	for _, tt := range tests {
		if got := s.Budget(tt.size); got != tt.want {
			t.Errorf("Budget(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	s := New(0, -1)
	if s.Seconds() != DefaultSeconds || s.MaxBytes() != int64(DefaultSeconds*DefaultBitrateKbps*1000/8) {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}

func TestClip(t *testing.T) {
	const budget = 1000

	tests := []struct {
		name       string
		start, end int64
		want       Window
		wantErr    bool
	}{
		{name: "inside", start: 0, end: 99, want: Window{0, 99}},
		{name: "end past budget", start: 900, end: 5000, want: Window{900, 999}},
		{name: "open end", start: 10, end: -1, want: Window{10, 999}},
		{name: "last byte", start: 999, end: 999, want: Window{999, 999}},
		{name: "start at budget", start: 1000, end: 1200, wantErr: true},
		{name: "start past budget", start: 4000, end: 4100, wantErr: true},
		{name: "reversed", start: 50, end: 10, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clip(tt.start, tt.end, budget)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsatisfiable) {
					t.Fatalf("expected ErrUnsatisfiable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tt.want {
				t.Fatalf("Clip = %+v, want %+v", got, tt.want)
			}
			if got.End >= budget {
				t.Fatal("window must never pass the budget")
			}
		})
	}
}

func TestWindowHeaders(t *testing.T) {
	w := Window{Start: 100, End: 199}
	if w.Length() != 100 {
		t.Fatalf("Length = %d", w.Length())
	}
	if got := w.ContentRange(480000); got != "bytes 100-199/480000" {
		t.Fatalf("ContentRange = %q", got)
	}
	if got := UnsatisfiedRange(480000); got != "bytes */480000" {
		t.Fatalf("UnsatisfiedRange = %q", got)
	}
	if Full(10) != (Window{0, 9}) {
		t.Fatal("Full should cover the whole budget")
	}
}

func TestStartsPastBudget(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"bytes=125-200", true},
		{"bytes=125-", true},
		{"bytes=200-300, 130-140", true},
		{"Bytes=500-600", true},
		{"bytes=5-2", false},
		{"bytes=200-100", false},
		{"bytes=-500", false},
		{"bytes=0-10", false},
		{"bytes=200-300, 10-20", false},
		{"bytes=abc-def", false},
		{"bytes=", false},
		{"items=200-300", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := StartsPastBudget(tt.header, 125); got != tt.want {
			t.Errorf("StartsPastBudget(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
