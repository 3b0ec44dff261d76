// Package sync orchestrates cost-category synchronization runs: it walks the
// top-level OUs of the organization and reconciles one cost-category
// definition per OU with active member accounts.
package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/cloudcost-tools/ou-category-sync/pkg/orgtree"
)

// Status reports whether a run completed.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome record returned to whatever triggered the run.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Collector reads the organization directory.
type Collector interface {
	RootID() (string, error)
	TopLevelOUs(rootID string) ([]string, error)
	OUName(ouID string) (string, error)
	CollectAccounts(ouID string) []orgtree.Account
}

// Reconciler persists one category definition per OU. Implementations absorb
// their own failures.
type Reconciler interface {
	Reconcile(ouName string, accountIDs []string)
}

type Syncer struct {
	logger     log.FieldLogger
	collector  Collector
	reconciler Reconciler
}

func NewSyncer(logger log.FieldLogger, collector Collector, reconciler Reconciler) *Syncer {
	return &Syncer{
		logger:     logger.WithField("component", "sync"),
		collector:  collector,
		reconciler: reconciler,
	}
}

// Run synchronizes cost categories for every top-level OU. Failures
// resolving the root or listing its children fail the run; everything below
// that is absorbed by the collector and reconciler, so a run can report
// success even when individual OUs were skipped or failed. Those only
// surface in logs and metrics.
func (s *Syncer) Run() Result {
	runsTotalCounter.Inc()
	timer := prometheus.NewTimer(runDurationHistogram)
	defer timer.ObserveDuration()

	rootID, err := s.collector.RootID()
	if err != nil {
		return s.failure(err)
	}

	ouIDs, err := s.collector.TopLevelOUs(rootID)
	if err != nil {
		return s.failure(err)
	}

	for _, ouID := range ouIDs {
		logger := s.logger.WithField("ou", ouID)

		ouName, err := s.collector.OUName(ouID)
		if err != nil {
			logger.WithError(err).Errorf("skipping OU %s: unable to resolve its name", ouID)
			continue
		}

		accounts := s.collector.CollectAccounts(ouID)
		if len(accounts) == 0 {
			logger.Debugf("OU %s has no active accounts, skipping", ouName)
			continue
		}

		accountIDs := make([]string, 0, len(accounts))
		for _, acct := range accounts {
			accountIDs = append(accountIDs, acct.ID)
		}

		logger.Debugf("reconciling OU %s with %d accounts", ouName, len(accountIDs))
		s.reconciler.Reconcile(ouName, accountIDs)
		ousReconciledCounter.Inc()
	}

	return Result{Status: StatusSuccess, Message: "Cost categories updated successfully"}
}

func (s *Syncer) failure(err error) Result {
	runsFailedCounter.Inc()
	s.logger.WithError(err).Error("sync run failed")
	return Result{Status: StatusFailure, Message: err.Error()}
}
