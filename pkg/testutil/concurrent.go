package testutil

import (
	"sync"

	dErrors "kycflow/pkg/domain-errors"
)

// ConcurrentResult tallies the outcomes of RunConcurrent.
type ConcurrentResult struct {
	Successes int
	codes     map[dErrors.Code]int
}

// Count returns how many calls failed with code. Errors without a domain
// code count as dErrors.CodeInternal.
func (r *ConcurrentResult) Count(code dErrors.Code) int {
	return r.codes[code]
}

// Total returns the number of calls made.
func (r *ConcurrentResult) Total() int {
	total := r.Successes
	for _, n := range r.codes {
		total += n
	}
	return total
}

// RunConcurrent calls fn from n goroutines released together and buckets
// the results by domain error code.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		res   = &ConcurrentResult{codes: make(map[dErrors.Code]int)}
	)
	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(i)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Successes++
				return
			}
			res.codes[dErrors.CodeOf(err)]++
		})
	}
	close(start)
	wg.Wait()
	return res
}
