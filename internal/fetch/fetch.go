// Package fetch holds the fan-out primitive shared by the vendor fetchers.
package fetch

import "sync"

// Settle runs fn once per slot concurrently and waits for every slot to
// finish before returning. There is no early abort: each fn is responsible
// for converting its own failure into a value, so the join never drops a
// target because a sibling failed.
func Settle[T any](n int, fn func(i int) T) []T {
	out := make([]T, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range out {
		go func(i int) {
			defer wg.Done()
			out[i] = fn(i)
		}(i)
	}
	wg.Wait()
	return out
}
