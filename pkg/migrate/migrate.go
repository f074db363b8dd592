package migrate

import (
	"context"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
)

func New(opts Options) *Migrator {
	m := &Migrator{
		executor:        opts.Executor,
		dryRun:          opts.DryRun,
		timeout:         opts.Timeout,
		filteredDomains: opts.FilteredDomains,
		log:             opts.Log,
		metrics:         opts.Metrics,
	}
	if m.log == nil {
		m.log = logrus.NewEntry(logrus.StandardLogger())
	}
	m.log = m.log.WithField("context", "migrate")
	if m.metrics == nil {
		m.metrics = metrics.Noop()
	}
	return m
}

func (m *Migrator) DryRun() bool {
	return m.dryRun
}

// Migrate moves the VM from src to dst. Constraint violations return one of
// the rejection errors and leave both hosts untouched. In dry run mode the
// move only happens in memory. Otherwise the executor is called and a failed
// or timed out execution is rolled back and reported as ErrExecutionFailure.
func (m *Migrator) Migrate(ctx context.Context, vmID string, src, dst *fleet.Host, maxOccupancy float64) (Attempt, error) {
	a := Attempt{
		VMID: vmID,
		Src:  src.ID,
		Dst:  dst.ID,
	}

	vm, ok := src.VM(vmID)
	if !ok {
		a.Outcome = OutcomeUnknownVM
		err := errors.Wrapf(ErrUnknownVM, "vm %s on %s", vmID, src.ID)
		a.Error = err.Error()
		return a, err
	}
	a.VMName = vm.DisplayName
	a.OSTemplate = vm.OSTemplate
	a.Memory = vm.Required()

	logger := m.log.WithFields(logrus.Fields{
		"vm":  vmID,
		"src": src.ID,
		"dst": dst.ID,
	})

	if err := m.check(vm, src, dst, maxOccupancy); err != nil {
		a.Outcome = OutcomeOf(err)
		a.Error = err.Error()
		m.metrics.MigrationRejected.Inc(1)
		logger.Debugf("Migration rejected: %s", err)
		return a, err
	}

	at, err := fleet.Transfer(vm.ID, src, dst)
	if err != nil {
		a.Outcome = OutcomeUnknownVM
		a.Error = err.Error()
		return a, errors.Wrap(ErrUnknownVM, err.Error())
	}

	if m.dryRun {
		a.Outcome = OutcomeSimulated
		a.Simulated = true
		m.metrics.MigrationSimulated.Inc(1)
		logger.Infof("Would migrate %s (%s) from %s to %s", vm.DisplayName, vm.OSTemplate, src.Name, dst.Name)
		return a, nil
	}

	a.Executed = true
	if err := m.execute(ctx, vm, src, dst); err != nil {
		if rerr := fleet.Revert(vm.ID, src, dst, at); rerr != nil {
			logger.Errorf("Rollback failed: %s", rerr)
		} else {
			m.metrics.MigrationRollback.Inc(1)
		}
		m.metrics.MigrationExecutionFailure.Inc(1)
		err = errors.Wrapf(ErrExecutionFailure, "vm %s from %s to %s: %s", vm.ID, src.ID, dst.ID, err)
		a.Outcome = OutcomeExecutionFailure
		a.Error = err.Error()
		logger.Warnf("Error migrating %s (%s) from %s to %s, rolled back", vm.DisplayName, vm.OSTemplate, src.Name, dst.Name)
		return a, err
	}

	a.Outcome = OutcomeMigrated
	m.metrics.MigrationSuccess.Inc(1)
	logger.Infof("Migrated %s (%s) from %s to %s", vm.DisplayName, vm.OSTemplate, src.Name, dst.Name)
	return a, nil
}

// check runs the placement constraints, first failure wins.
func (m *Migrator) check(vm fleet.VM, src, dst *fleet.Host, maxOccupancy float64) error {
	if vm.Domain != "" && funk.ContainsString(m.filteredDomains, vm.Domain) {
		return errors.Wrapf(ErrFilteredDomain, "vm %s domain %s", vm.ID, vm.Domain)
	}
	if dst.Dedicated {
		return errors.Wrapf(ErrDedicatedDestination, "host %s", dst.ID)
	}
	if src.Equal(dst) {
		return errors.Wrapf(ErrSameHost, "host %s", src.ID)
	}
	if dst.OccupancyRatio() >= maxOccupancy {
		return errors.Wrapf(ErrInsufficientCapacity, "host %s occupancy %.2f, maximum %.2f", dst.ID, dst.OccupancyRatio(), maxOccupancy)
	}
	if vm.HasAffinity() && dst.HasAffinityGroup(vm.AffinityGroup) {
		return errors.Wrapf(ErrAffinityConflict, "group %s on host %s", vm.AffinityGroup, dst.ID)
	}
	if dst.MemoryFree() < vm.Required() {
		return errors.Wrapf(ErrInsufficientCapacity, "host %s has %d free, vm %s requires %d", dst.ID, dst.MemoryFree(), vm.ID, vm.Required())
	}
	return nil
}

// execute calls the executor and waits for it at most until the timeout.
func (m *Migrator) execute(ctx context.Context, vm fleet.VM, src, dst *fleet.Host) error {
	if m.executor == nil {
		return errors.New("no executor configured")
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resCh := make(chan result, 1)
	go func() {
		ok, err := m.executor.Execute(ctx, vm.ID, src.ID, dst.ID)
		resCh <- result{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "executor did not respond")
	case res := <-resCh:
		if res.err != nil {
			return res.err
		}
		if !res.ok {
			return errors.New("executor reported failure")
		}
		return nil
	}
}
