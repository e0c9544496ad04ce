package parallel

import (
	"sync"
	"testing"
)

func TestRanges(t *testing.T) {
	tests := []struct {
		items, workers int
		want           [][2]int
	}{
		{10, 3, [][2]int{{0, 4}, {4, 7}, {7, 10}}},
		{4, 8, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}},
		{5, 0, [][2]int{{0, 5}}},
		{0, 4, nil},
	}
	for _, tt := range tests {
		got := Ranges(tt.items, tt.workers)
		if len(got) != len(tt.want) {
			t.Fatalf("Ranges(%d, %d) = %v, want %v", tt.items, tt.workers, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Ranges(%d, %d)[%d] = %v, want %v", tt.items, tt.workers, i, got[i], tt.want[i])
			}
		}
	}
}

func TestForCoversEveryRowOnce(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 8, 100} {
		const rows = 37
		var mu sync.Mutex
		seen := make([]int, rows)

		For(rows, workers, 0, func(start, end int) {
			mu.Lock()
			defer mu.Unlock()
			for i := start; i < end; i++ {
				seen[i]++
			}
		})

		for i, c := range seen {
			if c != 1 {
				t.Fatalf("workers=%d: row %d visited %d times", workers, i, c)
			}
		}
	}
}

func TestForBelowThresholdRunsOnce(t *testing.T) {
	calls := 0
	For(10, 4, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("unexpected range [%d,%d)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected one sequential call, got %d", calls)
	}

	For(0, 4, 0, func(int, int) { t.Error("fn should not run for zero rows") })
}
