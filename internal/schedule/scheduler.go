package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a named unit of periodic maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs jobs on standard five-field cron specs. A tick that
// arrives while the previous run is still going is skipped, not stacked.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	logger := logutil.GetLogger(context.Background()).With(
		zap.String("job", job.Name()),
		zap.String("cron", spec))
	entryID, err := c.cron.AddFunc(spec, c.wrap(job))
	if err != nil {
		logger.Error("register job failed", zap.Error(err))
		return err
	}
	c.entries[job.Name()] = entryID
	logger.Info("job registered")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

// Stop halts the ticker and waits for any in-flight run to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) wrap(job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).
				With(zap.String("job", job.Name())).
				Warn("previous run still active, skipping tick")
			return
		}
		defer running.Store(false)
		c.runOnce(job)
	}
}

func (c *CronScheduler) runOnce(job Job) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()))
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("job run failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	logger.Info("job run done", zap.Duration("took", time.Since(start)))
}
