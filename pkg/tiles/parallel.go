package tiles

import (
	"fmt"
	"runtime"
	"sync"
)

// job converts one or more input categories.
type job struct {
	name string
	run  func() ([]CategoryResult, error)
}

// runJobs runs jobs with a pool of workers and returns their category results
// in job order. workers <= 1 runs the jobs serially in order. Every job runs to
// completion; the first job error in job order is returned.
//
// Jobs must not share output channels unless those channels are safe for
// concurrent appends; the fragment writer is.
func runJobs(jobs []job, workers int, progress func(done, total int)) ([]CategoryResult, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if workers <= 1 {
		return runJobsSerial(jobs, progress)
	}
	if workers > runtime.NumCPU()*4 {
		workers = runtime.NumCPU() * 4
	}

	// Don't create more workers than jobs
	if workers > len(jobs) {
		workers = len(jobs)
	}

	type jobResult struct {
		index      int
		categories []CategoryResult
		err        error
	}

	queue := make(chan int, len(jobs))
	results := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				categories, err := jobs[index].run()
				results <- jobResult{index: index, categories: categories, err: err}
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]jobResult, len(jobs))
	done := 0
	for r := range results {
		done++
		if progress != nil {
			progress(done, len(jobs))
		}
		ordered[r.index] = r
	}

	var categories []CategoryResult
	var firstErr error
	for i, r := range ordered {
		categories = append(categories, r.categories...)
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", jobs[i].name, r.err)
		}
	}
	return categories, firstErr
}

// runJobsSerial runs jobs one at a time, stopping at the first error.
func runJobsSerial(jobs []job, progress func(done, total int)) ([]CategoryResult, error) {
	var categories []CategoryResult
	for i, j := range jobs {
		r, err := j.run()
		categories = append(categories, r...)
		if progress != nil {
			progress(i+1, len(jobs))
		}
		if err != nil {
			return categories, fmt.Errorf("%s: %w", j.name, err)
		}
	}
	return categories, nil
}
