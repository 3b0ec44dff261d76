package sync

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const shutdownTimeout = 30 * time.Second

// Daemon runs the syncer on a schedule and serves the HTTP trigger, health
// and metrics endpoints.
type Daemon struct {
	logger   log.FieldLogger
	syncer   *Syncer
	schedule string
	listen   string

	// running admits a single in-flight run per process. Runs triggered
	// while one is active are rejected, not queued.
	running *semaphore.Weighted
}

func NewDaemon(logger log.FieldLogger, syncer *Syncer, schedule, listen string) *Daemon {
	return &Daemon{
		logger:   logger.WithField("component", "daemon"),
		syncer:   syncer,
		schedule: schedule,
		listen:   listen,
		running:  semaphore.NewWeighted(1),
	}
}

// syncJob must implement the cron Job interface.
var _ cron.Job = (*syncJob)(nil)

type syncJob struct {
	d *Daemon
}

func (j *syncJob) Run() {
	result, ok := j.d.runOnce()
	if !ok {
		j.d.logger.Warn("scheduled sync skipped, another run is still in progress")
		return
	}
	if result.Status != StatusSuccess {
		j.d.logger.Errorf("scheduled sync failed: %s", result.Message)
	}
}

// runOnce executes a single run unless one is already in flight.
func (d *Daemon) runOnce() (Result, bool) {
	if !d.running.TryAcquire(1) {
		return Result{}, false
	}
	defer d.running.Release(1)
	return d.syncer.Run(), true
}

// Run blocks until ctx is cancelled, executing scheduled syncs and serving
// the HTTP API.
func (d *Daemon) Run(ctx context.Context) error {
	c := cron.New()
	if err := c.AddJob(d.schedule, &syncJob{d: d}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %v", d.schedule, err)
	}
	c.Start()
	defer c.Stop()
	d.logger.Infof("syncing on schedule %q", d.schedule)

	srv := &http.Server{
		Addr:    d.listen,
		Handler: d.newRouter(),
	}

	srvErr := make(chan error, 1)
	go func() {
		d.logger.Infof("HTTP API listening on %s", d.listen)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
