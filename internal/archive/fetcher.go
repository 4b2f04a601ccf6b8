package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

type Task struct {
	Desc   Descriptor
	Driver string // empty for the laps task
	Laps   bool
}

func (t Task) String() string {
	if t.Laps {
		return fmt.Sprintf("%s/laps", t.Desc)
	}
	return fmt.Sprintf("%s/telemetry/%s", t.Desc, t.Driver)
}

type TaskResult struct {
	Task      Task
	Success   bool
	Skipped   bool
	NotFound  bool
	BytesSize int64
	Error     error
}

type BatchResult struct {
	Total    int
	Success  int
	Skipped  int
	NotFound int
	Failed   int
	Errors   []string
}

// Fetcher downloads sessions into the cache with a bounded worker pool.
type Fetcher struct {
	client  Client
	cache   *Cache
	workers int
	logger  *zap.Logger
}

func NewFetcher(client Client, cache *Cache, workers int, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		cache:   cache,
		workers: workers,
		logger:  logger,
	}
}

// FetchSession caches every driver's telemetry plus the session's lap times.
// Files already in the cache are skipped, so an interrupted fetch resumes.
func (f *Fetcher) FetchSession(ctx context.Context, desc Descriptor) (*BatchResult, error) {
	drivers, err := f.client.ListDrivers(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("listing drivers: %w", err)
	}

	tasks := make([]Task, 0, len(drivers)+1)
	for _, d := range drivers {
		tasks = append(tasks, Task{Desc: desc, Driver: d})
	}
	tasks = append(tasks, Task{Desc: desc, Laps: true})

	return f.Execute(ctx, tasks)
}

func (f *Fetcher) Execute(ctx context.Context, tasks []Task) (*BatchResult, error) {
	result := &BatchResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	jobs := make(chan Task, len(tasks))
	results := make(chan TaskResult, len(tasks))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			f.worker(ctx, workerID, jobs, results)
		}(i)
	}

	// Send jobs
	go func() {
		for _, task := range tasks {
			select {
			case <-ctx.Done():
				return
			case jobs <- task:
			}
		}
		close(jobs)
	}()

	// Wait for workers and close results
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	for r := range results {
		if r.Skipped {
			result.Skipped++
		} else if r.NotFound {
			result.NotFound++
		} else if r.Success {
			result.Success++
		} else {
			result.Failed++
			if r.Error != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
			}
		}
	}

	return result, nil
}

func (f *Fetcher) worker(ctx context.Context, id int, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := f.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (f *Fetcher) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	var path string
	if task.Laps {
		path = f.cache.LapsPath(task.Desc)
	} else {
		path = f.cache.TelemetryPath(task.Desc, task.Driver)
	}

	// Check if file exists (resume)
	if f.cache.Has(path) {
		f.logger.Debug("skipping cached file", zap.String("task", task.String()))
		result.Skipped = true
		result.Success = true
		return result
	}

	f.logger.Info("fetching", zap.String("task", task.String()))

	size, err := f.cache.Stage(path, func(w io.Writer) (int64, error) {
		if task.Laps {
			return f.client.DownloadLaps(ctx, task.Desc, w)
		}
		return f.client.DownloadTelemetry(ctx, task.Desc, task.Driver, w)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.logger.Debug("not found", zap.String("task", task.String()))
			result.NotFound = true
			return result
		}
		result.Error = err
		return result
	}

	result.Success = true
	result.BytesSize = size
	f.logger.Info("fetched", zap.String("task", task.String()), zap.Int64("bytes", size))

	return result
}
