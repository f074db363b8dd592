package segregation

import (
	"time"

	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusRunning             Status = "Running"
	StatusNoWork              Status = "NoWork"
	StatusHealthy             Status = "Healthy"
	StatusConverged           Status = "Converged"
	StatusMaxRecursionReached Status = "MaxRecursionReached"
)

const (
	StrategySoft = "soft"
	StrategyHard = "hard"
)

type Options struct {
	Migrator *migrate.Migrator
	Log      *logrus.Entry
	Metrics  *metrics.Metrics
}

// Engine runs segregation strategies over a fleet snapshot. An engine is
// not safe for concurrent runs over the same hosts.
type Engine struct {
	migrator *migrate.Migrator
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

// Report is the outcome of one strategy run: every attempted migration in
// order plus the terminal status.
type Report struct {
	ID       string `json:"id"`
	Strategy string `json:"strategy"`
	DryRun   bool   `json:"dry_run"`
	Status   Status `json:"status"`

	// Threshold is the last windows VM threshold used by the soft strategy.
	Threshold int `json:"threshold,omitempty"`
	// Pivots lists the hosts selected by the hard strategy, in order.
	Pivots []string `json:"pivots,omitempty"`

	Attempts []migrate.Attempt `json:"attempts"`
	Warnings []string          `json:"warnings,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}
