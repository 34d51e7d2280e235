package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/logging"
)

var (
	// ErrJobNotFound is returned for an id that was never registered.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned when the job is already running.
	ErrJobRunning = errors.New("job is already running")
)

// Task is the body of a job. The returned message is shown in the job status.
type Task func(ctx context.Context) (string, error)

// JobStatus is the last known state of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type job struct {
	task    Task
	status  JobStatus
	running bool
}

// JobManager runs registered jobs in the background, at most one run per job
// at a time, and keeps their status.
type JobManager struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. Jobs receive a context that is cancelled by
// Shutdown.
func NewManager(logger *zap.Logger) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:   make(map[string]*job),
		logger: logging.OrNop(logger).Named("jobs"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job. Registering an id twice replaces its task.
func (jm *JobManager) Register(id, name string, task Task) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if j, ok := jm.jobs[id]; ok {
		j.task = task
		j.status.Name = name
		return
	}
	jm.jobs[id] = &job{task: task, status: JobStatus{ID: id, Name: name, Status: "idle"}}
}

// RunJob starts the registered task of a job in the background.
func (jm *JobManager) RunJob(id string) error {
	return jm.start(id, nil)
}

// RunTask starts a one-off task under a registered job's id, e.g. the job
// with different options. It shares the job's status and exclusivity.
func (jm *JobManager) RunTask(id string, task Task) error {
	return jm.start(id, task)
}

func (jm *JobManager) start(id string, override Task) error {
	jm.mu.Lock()
	j, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.running {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	if jm.ctx.Err() != nil {
		jm.mu.Unlock()
		return fmt.Errorf("job manager is shut down")
	}

	task := j.task
	if override != nil {
		task = override
	}
	runID := uuid.NewString()
	j.running = true
	j.status = JobStatus{
		ID:        id,
		Name:      j.status.Name,
		Status:    "running",
		Message:   "Job started...",
		RunID:     runID,
		StartTime: time.Now(),
	}
	jm.wg.Add(1)
	jm.mu.Unlock()

	log := jm.logger.With(zap.String("job", id), zap.String("run_id", runID))
	log.Info("Starting job")
	go func() {
		defer jm.wg.Done()
		var (
			msg string
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
			jm.finish(j, msg, err)
			if err != nil {
				log.Error("Job failed", zap.Error(err))
			} else {
				log.Info("Finished job", zap.String("message", msg))
			}
		}()
		msg, err = task(jm.ctx)
	}()
	return nil
}

func (jm *JobManager) finish(j *job, msg string, err error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j.running = false
	j.status.EndTime = time.Now()
	switch {
	case err != nil:
		j.status.Status = "failed"
		j.status.Message = err.Error()
	default:
		j.status.Status = "success"
		if msg == "" {
			msg = "Job completed successfully."
		}
		j.status.Message = msg
	}
}

// GetStatus returns a copy of every job's status, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.jobs))
	for _, j := range jm.jobs {
		statuses = append(statuses, j.status)
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].ID < statuses[b].ID })
	return statuses
}

// IsRunning reports whether a run of the job is in progress.
func (jm *JobManager) IsRunning(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[id]
	return ok && j.running
}

// Wait blocks until no job is running.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to return.
func (jm *JobManager) Shutdown() {
	jm.cancel()
	jm.wg.Wait()
}
