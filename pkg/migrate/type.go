package migrate

import (
	"context"
	"time"

	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrFilteredDomain       = errors.New("virtual machine domain is filtered")
	ErrDedicatedDestination = errors.New("destination host is dedicated")
	ErrSameHost             = errors.New("migration to and from the same host is not possible")
	ErrInsufficientCapacity = errors.New("the destination host doesn't have enough resources")
	ErrAffinityConflict     = errors.New("destination host already runs a member of the affinity group")
	ErrExecutionFailure     = errors.New("migration failed on the hypervisor")
	ErrUnknownVM            = errors.New("virtual machine is not owned by the source host")
)

// Executor performs the real migration and reports whether it finished
// successfully. Long running jobs are polled by the executor itself.
type Executor interface {
	Execute(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error)

func (f ExecutorFunc) Execute(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error) {
	return f(ctx, vmID, srcHostID, dstHostID)
}

type Options struct {
	Executor Executor
	DryRun   bool

	// Timeout bounds a single Executor call. Zero means no limit besides
	// the caller's context.
	Timeout time.Duration

	// FilteredDomains lists VM domains that must never be migrated.
	FilteredDomains []string

	Log     *logrus.Entry
	Metrics *metrics.Metrics
}

type Migrator struct {
	executor        Executor
	dryRun          bool
	timeout         time.Duration
	filteredDomains []string

	log     *logrus.Entry
	metrics *metrics.Metrics
}

type Outcome string

const (
	OutcomeMigrated             Outcome = "migrated"
	OutcomeSimulated            Outcome = "simulated"
	OutcomeFilteredDomain       Outcome = "filtered_domain"
	OutcomeDedicatedDestination Outcome = "dedicated_destination"
	OutcomeSameHost             Outcome = "same_host"
	OutcomeInsufficientCapacity Outcome = "insufficient_capacity"
	OutcomeAffinityConflict     Outcome = "affinity_conflict"
	OutcomeExecutionFailure     Outcome = "execution_failure"
	OutcomeUnknownVM            Outcome = "unknown_vm"
)

// Attempt records one call of Migrate.
type Attempt struct {
	VMID       string  `json:"vm_id"`
	VMName     string  `json:"vm_name,omitempty"`
	OSTemplate string  `json:"os_template,omitempty"`
	Memory     int64   `json:"memory"`
	Src        string  `json:"src"`
	Dst        string  `json:"dst"`
	Outcome    Outcome `json:"outcome"`

	// Executed is set when the executor was called.
	Executed bool `json:"executed"`
	// Simulated is set for dry run successes.
	Simulated bool   `json:"simulated"`
	Error     string `json:"error,omitempty"`
}

type result struct {
	ok  bool
	err error
}
