package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/vidl/internal/jobs"
	"github.com/vrsandeep/vidl/internal/updater"
)

type fakeUpdater struct {
	calls  atomic.Int32
	opts   updater.Options
	report *updater.Report
	err    error
}

func (f *fakeUpdater) Update(ctx context.Context, sel updater.Selector, opts updater.Options) (*updater.Report, error) {
	f.calls.Add(1)
	f.opts = opts
	return f.report, f.err
}

func sampleReport() *updater.Report {
	return &updater.Report{Channels: []updater.ChannelResult{
		{ChannelID: 1, NewVideos: 3},
		{ChannelID: 2, NewVideos: 1},
		{ChannelID: 3, Skipped: true, SkipReason: updater.SkipFresh},
		{ChannelID: 4, Err: errors.New("boom"), Error: "boom"},
	}}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "Checked 3 channels (1 skipped), 4 new videos, 1 failed.", jobs.Summarize(sampleReport()))
}

func TestUpdateJob(t *testing.T) {
	u := &fakeUpdater{report: sampleReport()}
	mgr := jobs.NewManager(nil)
	jobs.RegisterUpdateJob(mgr, u)

	require.NoError(t, mgr.RunJob(jobs.UpdateJobID))
	mgr.Wait()
	status := mgr.GetStatus()[0]
	assert.Equal(t, "success", status.Status)
	assert.Contains(t, status.Message, "4 new videos")
	assert.False(t, u.opts.Force)

	require.NoError(t, mgr.RunTask(jobs.UpdateJobID, jobs.UpdateTask(u, updater.Selector{}, updater.Options{Force: true, Full: true})))
	mgr.Wait()
	assert.True(t, u.opts.Force)
	assert.True(t, u.opts.Full)
	assert.EqualValues(t, 2, u.calls.Load())
}

func TestUpdateJobFailure(t *testing.T) {
	u := &fakeUpdater{report: &updater.Report{}, err: errors.New("database is locked")}
	mgr := jobs.NewManager(nil)
	jobs.RegisterUpdateJob(mgr, u)

	require.NoError(t, mgr.RunJob(jobs.UpdateJobID))
	mgr.Wait()
	status := mgr.GetStatus()[0]
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Message, "database is locked")
}

func TestStartSchedulerDisabled(t *testing.T) {
	s, err := jobs.StartScheduler(jobs.NewManager(nil), 0, nil)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestStartSchedulerRunsUpdate(t *testing.T) {
	u := &fakeUpdater{report: &updater.Report{}}
	mgr := jobs.NewManager(nil)
	jobs.RegisterUpdateJob(mgr, u)

	s, err := jobs.StartScheduler(mgr, time.Second, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool { return u.calls.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	mgr.Wait()
}
