package engine

import (
	"testing"
	"time"
)

func TestShouldFlush(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		size int
		age  time.Duration
		want bool
	}{
		{name: "empty", size: 0, age: 2 * time.Hour, want: false},
		{name: "below threshold young", size: 24, age: 10 * time.Minute, want: false},
		{name: "at size threshold", size: 25, age: 0, want: true},
		{name: "above size threshold", size: 40, age: 0, want: true},
		{name: "age at threshold", size: 1, age: time.Hour, want: false},
		{name: "age past threshold", size: 1, age: time.Hour + time.Second, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := shouldFlush(tt.size, tt.age, 25, time.Hour)
			if got != tt.want {
				t.Fatalf("shouldFlush(%d, %v) = %v, want %v", tt.size, tt.age, got, tt.want)
			}
		})
	}
}

func TestInQuietWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		hour, start, end int
		want             bool
	}{
		{name: "wrap before midnight", hour: 23, start: 23, end: 6, want: true},
		{name: "wrap after midnight", hour: 3, start: 23, end: 6, want: true},
		{name: "wrap end exclusive", hour: 6, start: 23, end: 6, want: false},
		{name: "wrap daytime", hour: 12, start: 23, end: 6, want: false},
		{name: "wrap just before start", hour: 22, start: 23, end: 6, want: false},
		{name: "plain inside", hour: 2, start: 1, end: 5, want: true},
		{name: "plain start inclusive", hour: 1, start: 1, end: 5, want: true},
		{name: "plain end exclusive", hour: 5, start: 1, end: 5, want: false},
		{name: "equal bounds disabled", hour: 4, start: 4, end: 4, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := inQuietWindow(tt.hour, tt.start, tt.end)
			if got != tt.want {
				t.Fatalf("inQuietWindow(%d, %d, %d) = %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}
