// Package parallel splits index ranges across goroutines.
package parallel

import "sync"

// Ranges splits [0, items) into at most workers contiguous half-open ranges
// whose sizes differ by at most one.
func Ranges(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	workers = min(max(workers, 1), items)
	size, extra := items/workers, items%workers

	out := make([][2]int, workers)
	start := 0
	for i := range out {
		end := start + size
		if i < extra {
			end++
		}
		out[i] = [2]int{start, end}
		start = end
	}
	return out
}

// For runs fn once per range of Ranges(items, workers) and waits for all of
// them. When items does not exceed threshold, or a single range results, fn
// runs on the calling goroutine.
func For(items, workers, threshold int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if items <= threshold || workers <= 1 {
		fn(0, items)
		return
	}

	var wg sync.WaitGroup
	for _, r := range Ranges(items, workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(r[0], r[1])
		}()
	}
	wg.Wait()
}
