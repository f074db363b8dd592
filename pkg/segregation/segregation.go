package segregation

import (
	"context"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/foxdalas/segregate/pkg/rank"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
)

func New(opts Options) *Engine {
	e := &Engine{
		migrator: opts.Migrator,
		log:      opts.Log,
		metrics:  opts.Metrics,
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("context", "segregation")
	if e.metrics == nil {
		e.metrics = metrics.Noop()
	}
	if e.migrator == nil {
		e.migrator = migrate.New(migrate.Options{DryRun: true, Log: e.log, Metrics: e.metrics})
	}
	return e
}

// Soft moves windows VMs away from hosts running at most minWindowsThreshold
// of them into the hosts running more. When no host runs more, the threshold
// is lowered until a destination appears or it would reach zero.
func (e *Engine) Soft(ctx context.Context, hosts []*fleet.Host, minWindowsThreshold int, maxOccupancy float64) (*Report, error) {
	f, err := fleet.New(hosts)
	if err != nil {
		return nil, err
	}

	r := e.newReport(StrategySoft)
	e.metrics.RunSoft.Inc(1)
	e.Log().Infof("Soft segregation started (minimum %d windows VMs, maximum occupancy %.2f)", minWindowsThreshold, maxOccupancy)

	err = e.soft(ctx, minWindowsThreshold, maxOccupancy, f, r)
	e.finish(f, r)
	return r, err
}

func (e *Engine) soft(ctx context.Context, threshold int, maxOccupancy float64, f *fleet.Fleet, r *Report) error {
	r.Threshold = threshold
	src, dst := partition(f.Hosts(), threshold)

	switch {
	case len(src) == 0 && len(dst) == 0:
		e.Log().Info("Empty hypervisors, nothing to segregate")
		r.Status = StatusNoWork
		return nil
	case len(src) == 0:
		e.Log().Info("Healthy cluster")
		r.Status = StatusHealthy
		return nil
	case len(dst) == 0:
		if threshold-1 < 1 {
			e.Log().Warnf("No destination host found down to threshold %d", threshold)
			r.Status = StatusMaxRecursionReached
			return nil
		}
		e.Log().Infof("No destination host with more than %d windows VMs, lowering threshold", threshold)
		return e.soft(ctx, threshold-1, maxOccupancy, f, r)
	}

	for _, h := range src {
		e.Log().Infof("SRC: %s", h.Name)
	}
	for _, h := range dst {
		e.Log().Infof("DST: %s", h.Name)
	}

	dstHosts := rank.ByOccupancy(dst)
	for _, s := range rank.LeastWindowsHosts(src) {
		e.Log().Debugf("Current source: %s", s.Name)

		for _, vm := range s.WindowsVMs(true) {
			for _, d := range dstHosts {
				if err := ctx.Err(); err != nil {
					return err
				}
				if e.attempt(ctx, r, vm.ID, s, d, maxOccupancy) == nil {
					break
				}
			}
		}
	}

	if r.Succeeded() == 0 {
		r.Status = StatusNoWork
	} else {
		r.Status = StatusConverged
	}
	return nil
}

// maxHardPasses bounds how many times the hard strategy walks the fleet
// looking for a layout where a full pass migrates nothing.
const maxHardPasses = 10

// Hard concentrates windows VMs on as few hosts as possible. The host with
// the most windows VMs becomes the pivot: its other VMs are moved out, then
// windows VMs from the remaining hosts are pulled in, and the run repeats on
// the remaining hosts. Passes are repeated until one migrates nothing, so a
// second run over the result has no work left.
func (e *Engine) Hard(ctx context.Context, hosts []*fleet.Host, maxOccupancy float64) (*Report, error) {
	f, err := fleet.New(hosts)
	if err != nil {
		return nil, err
	}

	r := e.newReport(StrategyHard)
	e.metrics.RunHard.Inc(1)
	e.Log().Infof("Hard segregation started (maximum occupancy %.2f)", maxOccupancy)

	if !f.HasWindowsVMs() {
		e.Log().Info("No windows VMs found, nothing to segregate")
		r.Status = StatusNoWork
		e.finish(f, r)
		return r, nil
	}

	for pass := 1; ; pass++ {
		if pass > maxHardPasses {
			e.Log().Warnf("Fleet still changing after %d passes", maxHardPasses)
			r.Status = StatusMaxRecursionReached
			break
		}

		succeeded := r.Succeeded()
		r.Pivots = nil
		if err = e.hard(ctx, maxOccupancy, f, f.Hosts(), r); err != nil {
			break
		}
		if r.Succeeded() == succeeded {
			r.Status = StatusConverged
			break
		}
		e.Log().Debugf("Pass %d migrated %d VMs, walking the fleet again", pass, r.Succeeded()-succeeded)
	}

	e.metrics.Pivots.Update(float64(len(r.Pivots)))
	e.finish(f, r)
	return r, err
}

func (e *Engine) hard(ctx context.Context, maxOccupancy float64, f *fleet.Fleet, remaining []*fleet.Host, r *Report) error {
	candidates := rank.NonDedicated(remaining)
	if len(candidates) < 2 {
		return nil
	}

	ordered := rank.MostWindowsHosts(candidates, false, 0)
	pivot := ordered[0]
	if pivot.AmountOfWindowsVMs(false) == 0 {
		return nil
	}
	e.Log().Infof("Pivot: %s (%d windows VMs)", pivot.Name, pivot.AmountOfWindowsVMs(false))

	// earlier pivots of this pass keep their windows only layout
	var destinations []*fleet.Host
	for _, h := range rank.ByOccupancy(f.Hosts()) {
		if !funk.ContainsString(r.Pivots, h.ID) {
			destinations = append(destinations, h)
		}
	}
	r.Pivots = append(r.Pivots, pivot.ID)

	for _, vm := range pivot.OtherVMs(true) {
		for _, dst := range destinations {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.attempt(ctx, r, vm.ID, pivot, dst, maxOccupancy) == nil {
				break
			}
		}
	}

	for _, h := range remaining {
		if h.Equal(pivot) || h.Dedicated {
			continue
		}
		for _, vm := range h.WindowsVMs(false) {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := e.attempt(ctx, r, vm.ID, h, pivot, maxOccupancy)
			if errors.Cause(err) == migrate.ErrInsufficientCapacity {
				e.Log().Debugf("Pivot %s is full, skipping the rest of %s", pivot.Name, h.Name)
				break
			}
		}
	}

	return e.hard(ctx, maxOccupancy, f, rank.Without(remaining, pivot.ID), r)
}

func (e *Engine) attempt(ctx context.Context, r *Report, vmID string, src, dst *fleet.Host, maxOccupancy float64) error {
	a, err := e.migrator.Migrate(ctx, vmID, src, dst, maxOccupancy)
	r.Attempts = append(r.Attempts, a)
	if err != nil && !migrate.IsRejection(err) {
		e.Log().Warn(err)
		r.Warnings = append(r.Warnings, err.Error())
	}
	return err
}

// partition splits non dedicated hosts into sources (1..threshold windows
// VMs) and destinations (more than threshold). Hosts without windows VMs are
// left out.
func partition(hosts []*fleet.Host, threshold int) (src, dst []*fleet.Host) {
	for _, h := range rank.NonDedicated(hosts) {
		count := h.AmountOfWindowsVMs(false)
		switch {
		case count == 0:
		case count <= threshold:
			src = append(src, h)
		default:
			dst = append(dst, h)
		}
	}
	return src, dst
}
