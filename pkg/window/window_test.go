package window

import (
	"testing"
	"time"
)

func TestStartFloorsToCycle(t *testing.T) {
	tests := []struct {
		name  string
		cycle time.Duration
		at    string
		want  string
	}{
		{
			name:  "mid window",
			cycle: 10 * time.Minute,
			at:    "2024-01-01T10:15:30Z",
			want:  "2024-01-01T10:10:00Z",
		},
		{
			name:  "exact boundary maps to itself",
			cycle: 10 * time.Minute,
			at:    "2024-01-01T10:10:00Z",
			want:  "2024-01-01T10:10:00Z",
		},
		{
			name:  "one second before boundary",
			cycle: 10 * time.Minute,
			at:    "2024-01-01T10:19:59Z",
			want:  "2024-01-01T10:10:00Z",
		},
		{
			name:  "hour cycle",
			cycle: 60 * time.Minute,
			at:    "2024-06-15T23:59:59Z",
			want:  "2024-06-15T23:00:00Z",
		},
		{
			name:  "odd cycle length",
			cycle: 17 * time.Minute,
			at:    "2024-03-10T00:30:00Z",
			want:  "2024-03-10T00:25:48Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at, err := time.Parse(time.RFC3339, tt.at)
			if err != nil {
				t.Fatalf("parse input: %v", err)
			}
			want, err := time.Parse(time.RFC3339, tt.want)
			if err != nil {
				t.Fatalf("parse want: %v", err)
			}
			got := Start(tt.cycle, at)
			if got != want.Unix() {
				t.Fatalf("Start(%v, %s) = %d, want %d", tt.cycle, tt.at, got, want.Unix())
			}
		})
	}
}

func TestStartBounds(t *testing.T) {
	// windowStart <= t and t - windowStart < cycle, across the full
	// accepted cycle range.
	base := time.Date(2024, 5, 20, 13, 37, 21, 0, time.UTC)
	for cycleMin := 10; cycleMin <= 60; cycleMin++ {
		cycle := time.Duration(cycleMin) * time.Minute
		for offset := 0; offset < 7; offset++ {
			at := base.Add(time.Duration(offset*641) * time.Second)
			start := Start(cycle, at)
			if start > at.Unix() {
				t.Fatalf("cycle=%dm: start %d after timestamp %d", cycleMin, start, at.Unix())
			}
			if at.Unix()-start >= int64(cycleMin*60) {
				t.Fatalf("cycle=%dm: timestamp %d outside window starting %d", cycleMin, at.Unix(), start)
			}
		}
	}
}

func TestStartDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 15, 30, 0, time.UTC)
	a := Start(30*time.Minute, at)
	b := Start(30*time.Minute, at)
	if a != b {
		t.Fatalf("identical inputs produced %d and %d", a, b)
	}
}

func TestKey(t *testing.T) {
	got := Key("cmp-42", 1704104400)
	if got != "cmp-42:1704104400" {
		t.Fatalf("unexpected key: %s", got)
	}
	if Key("a", 1) == Key("a", 2) {
		t.Fatal("distinct windows must not collide")
	}
	if Key("a", 1) == Key("b", 1) {
		t.Fatal("distinct campaigns must not collide")
	}
}
