package segregation

import (
	"time"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (e *Engine) Log() *logrus.Entry {
	return e.log
}

func (e *Engine) newReport(strategy string) *Report {
	return &Report{
		ID:       uuid.New().String(),
		Strategy: strategy,
		DryRun:   e.migrator.DryRun(),
		Status:   StatusRunning,
		Attempts: []migrate.Attempt{},
		Started:  time.Now(),
	}
}

func (e *Engine) finish(f *fleet.Fleet, r *Report) {
	r.Finished = time.Now()
	if err := f.Verify(); err != nil {
		e.Log().Errorf("Fleet is inconsistent after %s segregation: %s", r.Strategy, err)
	}

	switch r.Status {
	case StatusNoWork:
		e.metrics.RunNoWork.Inc(1)
	case StatusHealthy:
		e.metrics.RunHealthy.Inc(1)
	case StatusConverged:
		e.metrics.RunConverged.Inc(1)
	case StatusMaxRecursionReached:
		e.metrics.RunMaxRecursion.Inc(1)
	}

	e.Log().WithFields(logrus.Fields{
		"status":    r.Status,
		"attempts":  len(r.Attempts),
		"succeeded": r.Succeeded(),
		"warnings":  len(r.Warnings),
	}).Infof("%s segregation finished", r.Strategy)
}

// Succeeded counts migrations that happened, simulated ones included.
func (r *Report) Succeeded() int {
	return len(r.Migrations())
}

// Rejected counts attempts refused by a placement constraint.
func (r *Report) Rejected() int {
	counter := 0
	for _, a := range r.Attempts {
		switch a.Outcome {
		case migrate.OutcomeMigrated, migrate.OutcomeSimulated, migrate.OutcomeExecutionFailure, migrate.OutcomeUnknownVM:
		default:
			counter++
		}
	}
	return counter
}

// Migrations returns the successful attempts in order.
func (r *Report) Migrations() []migrate.Attempt {
	var result []migrate.Attempt
	for _, a := range r.Attempts {
		if a.Outcome == migrate.OutcomeMigrated || a.Outcome == migrate.OutcomeSimulated {
			result = append(result, a)
		}
	}
	return result
}
