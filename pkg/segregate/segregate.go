package segregate

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/foxdalas/segregate/pkg/segregate_const"
	"github.com/foxdalas/segregate/pkg/segregation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
	"github.com/uber-go/tally/v4"
)

var _ segregate.Segregate = &Segregate{}

var Modes = []string{segregation.StrategySoft, segregation.StrategyHard}

func New(version string, logger *log.Entry, scope tally.Scope) *Segregate {
	if scope == nil {
		scope = tally.NoopScope
	}
	return &Segregate{
		Ver:     version,
		log:     logger,
		Scope:   scope,
		metrics: metrics.New(scope),
		stopCh:  make(chan struct{}),
	}
}

// Init runs the configured strategy once against the inventory. SIGINT and
// SIGTERM cancel the run; a migration in flight is rolled back in memory.
func (o *Segregate) Init() {
	o.Log().Infof("Segregate %s starting", o.Ver)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-c
		logger := o.Log().WithField("signal", s.String())
		logger.Debug("received signal")
		o.Stop()
	}()

	ctx, cancel := o.Context()
	defer cancel()

	hosts, err := o.HostList()
	if err != nil {
		o.Log().Error(err)
		o.Exitcode = 1
		return
	}

	report, err := o.Segregate(ctx, hosts, o.Request())
	if err != nil {
		o.Log().Error(err)
		o.Exitcode = 1
	}
	if report != nil {
		o.LogReport(report)
	}
}

// SetScope rebinds the run and migration metrics to scope.
func (o *Segregate) SetScope(scope tally.Scope) {
	o.Scope = scope
	o.metrics = metrics.New(scope)
}

// Context returns a context cancelled by Stop.
func (o *Segregate) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-o.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Request builds a run request from the command line configuration.
func (o *Segregate) Request() Request {
	return Request{
		Mode:         o.Mode,
		Threshold:    o.Threshold,
		MaxOccupancy: o.MaxOccupancy,
		DryRun:       o.DryRun,
	}
}

// HostList fetches a fresh host list from the inventory.
func (o *Segregate) HostList() ([]*fleet.Host, error) {
	if o.Inventory == nil {
		return nil, ErrNoInventory
	}
	o.Log().Infof("Processing hypervisors matching %q", o.Hosts)
	return o.Inventory.BuildHostList(o.Hosts)
}

// Segregate validates req and runs the requested strategy on hosts. Live
// runs are serialised; dry runs never reach the executor and may overlap.
func (o *Segregate) Segregate(ctx context.Context, hosts []*fleet.Host, req Request) (*segregation.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !req.DryRun {
		if !o.live.TryLock() {
			return nil, ErrBusy
		}
		defer o.live.Unlock()
	}
	return o.run(ctx, hosts, req)
}

// Go is the asynchronous form of Segregate. Validation and the live run lock
// happen before it returns; done receives the outcome of the run.
func (o *Segregate) Go(ctx context.Context, hosts []*fleet.Host, req Request, done func(*segregation.Report, error)) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if !req.DryRun && !o.live.TryLock() {
		return ErrBusy
	}

	go func() {
		report, err := o.run(ctx, hosts, req)
		if !req.DryRun {
			o.live.Unlock()
		}
		done(report, err)
	}()
	return nil
}

func (o *Segregate) run(ctx context.Context, hosts []*fleet.Host, req Request) (*segregation.Report, error) {
	engine := o.Engine(req.DryRun)
	if req.Mode == segregation.StrategySoft {
		return engine.Soft(ctx, hosts, req.Threshold, req.MaxOccupancy)
	}
	return engine.Hard(ctx, hosts, req.MaxOccupancy)
}

// Engine builds a segregation engine around a migrator configured from o.
func (o *Segregate) Engine(dryRun bool) *segregation.Engine {
	m := migrate.New(migrate.Options{
		Executor:        o.Executor,
		DryRun:          dryRun,
		Timeout:         o.MigrationTimeout,
		FilteredDomains: o.FilteredDomains,
		Log:             o.Log(),
		Metrics:         o.metrics,
	})
	return segregation.New(segregation.Options{
		Migrator: m,
		Log:      o.Log(),
		Metrics:  o.metrics,
	})
}

func (o *Segregate) LogReport(r *segregation.Report) {
	for _, a := range r.Attempts {
		entry := o.Log().WithFields(log.Fields{
			"vm":      a.VMName,
			"src":     a.Src,
			"dst":     a.Dst,
			"outcome": a.Outcome,
		})
		if a.Error != "" {
			entry.Debug(a.Error)
		} else {
			entry.Debug("attempt")
		}
	}
	for _, w := range r.Warnings {
		o.Log().Warn(w)
	}
	o.Log().WithFields(log.Fields{
		"id":        r.ID,
		"strategy":  r.Strategy,
		"dry_run":   r.DryRun,
		"status":    r.Status,
		"migrated":  r.Succeeded(),
		"rejected":  r.Rejected(),
		"attempts":  len(r.Attempts),
		"threshold": r.Threshold,
		"pivots":    r.Pivots,
	}).Info("Segregation report")
}

// Validate checks the request against the supported modes and bounds.
func (r Request) Validate() error {
	if !funk.ContainsString(Modes, r.Mode) {
		return errors.Wrapf(ErrInvalidMode, "got %q", r.Mode)
	}
	if r.Mode == segregation.StrategySoft && r.Threshold < 1 {
		return errors.Wrapf(ErrInvalidThreshold, "got %d", r.Threshold)
	}
	if r.MaxOccupancy <= 0 || r.MaxOccupancy > 1 {
		return errors.Wrapf(ErrInvalidMaxOccupancy, "got %.2f", r.MaxOccupancy)
	}
	return nil
}

func (o *Segregate) Stop() {
	o.stopOnce.Do(func() {
		o.Log().Info("shutting things down")
		close(o.stopCh)
	})
}

// Done is closed once Stop is called.
func (o *Segregate) Done() <-chan struct{} {
	return o.stopCh
}

func (o *Segregate) Log() *log.Entry {
	return o.log
}

func (o *Segregate) Version() string {
	return o.Ver
}
