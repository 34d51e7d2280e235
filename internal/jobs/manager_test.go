package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/vidl/internal/jobs"
)

func noop(ctx context.Context) (string, error) { return "", nil }

func TestManager_NewManager(t *testing.T) {
	mgr := jobs.NewManager(nil)
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("jobB", "Job B", noop)
	mgr.Register("jobA", "Job A", noop)
	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "Job B", statuses[1].Name)
	assert.Equal(t, "idle", statuses[0].Status)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	mgr := jobs.NewManager(nil)
	var called bool
	mgr.Register("jobX", "Job X", func(ctx context.Context) (string, error) {
		called = true
		return "did the thing", nil
	})
	require.NoError(t, mgr.RunJob("jobX"))
	mgr.Wait()

	assert.True(t, called)
	statuses := mgr.GetStatus()
	assert.Equal(t, "success", statuses[0].Status)
	assert.Equal(t, "did the thing", statuses[0].Message)
	assert.NotEmpty(t, statuses[0].RunID)
	assert.False(t, statuses[0].EndTime.Before(statuses[0].StartTime))
}

func TestManager_RunJob_Failure(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("jobF", "Job F", func(ctx context.Context) (string, error) {
		return "", errors.New("remote exploded")
	})
	require.NoError(t, mgr.RunJob("jobF"))
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Equal(t, "remote exploded", statuses[0].Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	mgr := jobs.NewManager(nil)
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(ctx context.Context) (string, error) {
		<-block
		return "", nil
	})
	mgr.Register("jobZ", "Job Z", noop)

	require.NoError(t, mgr.RunJob("jobY"))
	assert.True(t, mgr.IsRunning("jobY"))
	assert.ErrorIs(t, mgr.RunJob("jobY"), jobs.ErrJobRunning)
	// Other jobs are not blocked.
	assert.NoError(t, mgr.RunJob("jobZ"))

	close(block)
	mgr.Wait()
	assert.False(t, mgr.IsRunning("jobY"))
	assert.NoError(t, mgr.RunJob("jobY"))
	mgr.Wait()
}

func TestManager_RunJob_NotFound(t *testing.T) {
	mgr := jobs.NewManager(nil)
	assert.ErrorIs(t, mgr.RunJob("nojob"), jobs.ErrJobNotFound)
	assert.ErrorIs(t, mgr.RunTask("nojob", noop), jobs.ErrJobNotFound)
}

func TestManager_RunTaskOverridesOnce(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("job", "Job", func(ctx context.Context) (string, error) { return "default", nil })

	require.NoError(t, mgr.RunTask("job", func(ctx context.Context) (string, error) { return "override", nil }))
	mgr.Wait()
	assert.Equal(t, "override", mgr.GetStatus()[0].Message)

	require.NoError(t, mgr.RunJob("job"))
	mgr.Wait()
	assert.Equal(t, "default", mgr.GetStatus()[0].Message)
}

func TestManager_RunJob_Panic(t *testing.T) {
	mgr := jobs.NewManager(nil)
	mgr.Register("panicJob", "Panic Job", func(ctx context.Context) (string, error) { panic("fail") })
	require.NoError(t, mgr.RunJob("panicJob"))
	mgr.Wait()

	statuses := mgr.GetStatus()
	assert.Equal(t, "failed", statuses[0].Status)
	assert.Contains(t, statuses[0].Message, "panicked")
}

func TestManager_Concurrency(t *testing.T) {
	mgr := jobs.NewManager(nil)
	var mu sync.Mutex
	var count int
	release := make(chan struct{})
	mgr.Register("jobC", "Job C", func(ctx context.Context) (string, error) {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return "", nil
	})
	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RunJob("jobC")
		}()
	}
	wg.Wait()
	close(release)
	mgr.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}

func TestManager_ShutdownCancelsJobs(t *testing.T) {
	mgr := jobs.NewManager(nil)
	started := make(chan struct{})
	mgr.Register("long", "Long", func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, mgr.RunJob("long"))
	<-started

	done := make(chan struct{})
	go func() {
		mgr.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, "failed", mgr.GetStatus()[0].Status)
	assert.Error(t, mgr.RunJob("long"))
}
