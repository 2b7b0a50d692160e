package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// Job is a unit of background work identified by name. Plain jobs run on
// a short fixed tick; a job may implement CronJob to pick its own schedule.
type Job interface {
	Name() string
	Run()
}

type CronJob interface {
	Job
	Schedule() string
}

const drainTick = "@every 1s"

type TaskExecutor struct {
	cron     *cron.Cron
	jobs     []Job
	cronJobs []CronJob
	mu       sync.Mutex
	running  mapset.Set[string]
}

func NewTaskExecutor(jobs []Job, cronJobs []CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:     cron.New(),
		jobs:     jobs,
		cronJobs: cronJobs,
		running:  mapset.NewSet[string](),
	}
}

// Run registers every job with the cron and starts it. A job still running
// when its next tick arrives is skipped, not stacked.
func (t *TaskExecutor) Run() {
	for _, job := range t.jobs {
		t.schedule(job, drainTick)
	}
	for _, job := range t.cronJobs {
		t.schedule(job, job.Schedule())
	}
	t.cron.Start()
}

func (t *TaskExecutor) schedule(job Job, spec string) {
	err := t.cron.AddFunc(spec, func() {
		t.mu.Lock()
		if t.running.Contains(job.Name()) {
			t.mu.Unlock()
			logrus.Warnf("job %s is still running, skipping tick", job.Name())
			return
		}
		t.running.Add(job.Name())
		t.mu.Unlock()

		defer func() {
			t.mu.Lock()
			t.running.Remove(job.Name())
			t.mu.Unlock()
		}()

		job.Run()
	})
	if err != nil {
		logrus.Errorf("failed to schedule job %s: %v", job.Name(), err)
		panic(err)
	}
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all jobs")
	t.cron.Stop()
}
