package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally/v4"
)

type call struct {
	vm, src, dst string
}

type fakeExecutor struct {
	ok    bool
	err   error
	delay time.Duration
	calls []call
}

func (f *fakeExecutor) Execute(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error) {
	f.calls = append(f.calls, call{vmID, srcHostID, dstHostID})
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.ok, f.err
}

type MigrateTestSuite struct {
	suite.Suite

	scope    tally.TestScope
	executor *fakeExecutor
	src      *fleet.Host
	dst      *fleet.Host
	fleet    *fleet.Fleet
}

func (s *MigrateTestSuite) SetupTest() {
	s.scope = tally.NewTestScope("", map[string]string{})
	s.executor = &fakeExecutor{ok: true}

	s.src = fleet.NewHost("src", 10, false)
	s.src.AddVM(fleet.VM{ID: "vm-1", OSTemplate: "Windows", MemoryRequired: 2, Domain: "d1"})
	s.src.AddVM(fleet.VM{ID: "vm-2", OSTemplate: "Windows", MemoryRequired: 1, AffinityGroup: "G1"})
	s.src.AddVM(fleet.VM{ID: "vm-3", OSTemplate: "Linux", MemoryRequired: 3})

	s.dst = fleet.NewHost("dst", 10, false)
	s.dst.AddVM(fleet.VM{ID: "vm-4", OSTemplate: "Windows", MemoryRequired: 4, AffinityGroup: "G1"})

	var err error
	s.fleet, err = fleet.New([]*fleet.Host{s.src, s.dst})
	s.Require().NoError(err)
}

func (s *MigrateTestSuite) migrator(dryRun bool, timeout time.Duration, domains ...string) *Migrator {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return New(Options{
		Executor:        s.executor,
		DryRun:          dryRun,
		Timeout:         timeout,
		FilteredDomains: domains,
		Log:             logrus.NewEntry(logger),
		Metrics:         metrics.New(s.scope),
	})
}

func (s *MigrateTestSuite) counter(name string) int64 {
	c, ok := s.scope.Snapshot().Counters()[name+"+"]
	if !ok {
		return 0
	}
	return c.Value()
}

func (s *MigrateTestSuite) assertUnchanged() {
	s.Equal([]string{"vm-1", "vm-2", "vm-3"}, vmIDs(s.src.VMs()))
	s.Equal([]string{"vm-4"}, vmIDs(s.dst.VMs()))
	s.Equal(int64(6), s.src.MemoryAllocated())
	s.Equal(int64(4), s.dst.MemoryAllocated())
	s.NoError(s.fleet.Verify())
}

func (s *MigrateTestSuite) TestLiveSuccess() {
	a, err := s.migrator(false, 0).Migrate(context.Background(), "vm-1", s.src, s.dst, 1.0)
	s.Require().NoError(err)

	s.Equal(OutcomeMigrated, a.Outcome)
	s.True(a.Executed)
	s.False(a.Simulated)
	s.Equal([]call{{"vm-1", "src", "dst"}}, s.executor.calls)
	s.Equal([]string{"vm-2", "vm-3"}, vmIDs(s.src.VMs()))
	s.Equal([]string{"vm-4", "vm-1"}, vmIDs(s.dst.VMs()))
	s.Equal(int64(4), s.src.MemoryAllocated())
	s.Equal(int64(6), s.dst.MemoryAllocated())
	in, _ := s.dst.Counters()
	s.Equal(1, in)
	_, out := s.src.Counters()
	s.Equal(1, out)
	s.NoError(s.fleet.Verify())
	s.Equal(int64(1), s.counter("migration.success"))
}

func (s *MigrateTestSuite) TestDryRunDoesNotCallExecutor() {
	a, err := s.migrator(true, 0).Migrate(context.Background(), "vm-3", s.src, s.dst, 1.0)
	s.Require().NoError(err)

	s.Equal(OutcomeSimulated, a.Outcome)
	s.True(a.Simulated)
	s.False(a.Executed)
	s.Empty(s.executor.calls)
	s.Equal([]string{"vm-4", "vm-3"}, vmIDs(s.dst.VMs()))
	s.Equal(int64(1), s.counter("migration.simulated"))
}

func (s *MigrateTestSuite) TestRejections() {
	dedicated := fleet.NewHost("dedicated", 100, true)
	full := fleet.NewHost("full", 4, false)
	full.AddVM(fleet.VM{ID: "vm-9", MemoryRequired: 3})

	cases := []struct {
		name         string
		vm           string
		dst          *fleet.Host
		maxOccupancy float64
		want         error
	}{
		{"filtered domain", "vm-1", dedicated, 1.0, ErrFilteredDomain},
		{"dedicated", "vm-3", dedicated, 1.0, ErrDedicatedDestination},
		{"same host", "vm-3", s.src, 1.0, ErrSameHost},
		{"occupancy", "vm-3", s.dst, 0.4, ErrInsufficientCapacity},
		{"affinity", "vm-2", s.dst, 1.0, ErrAffinityConflict},
		{"memory", "vm-3", full, 1.0, ErrInsufficientCapacity},
	}

	m := s.migrator(false, 0, "d1")
	for _, tc := range cases {
		a, err := m.Migrate(context.Background(), tc.vm, s.src, tc.dst, tc.maxOccupancy)
		s.Require().Error(err, tc.name)
		s.Equal(tc.want, errors.Cause(err), tc.name)
		s.True(IsRejection(err), tc.name)
		s.Equal(OutcomeOf(err), a.Outcome, tc.name)
		s.False(a.Executed, tc.name)
	}

	s.Empty(s.executor.calls)
	s.assertUnchanged()
	s.Equal(1, full.AmountOfVMs())
	s.True(dedicated.IsEmpty())
	s.Equal(int64(len(cases)), s.counter("migration.rejected"))
}

func (s *MigrateTestSuite) TestSameHostNeverMutates() {
	m := s.migrator(false, 0)
	for _, vm := range s.src.VMs() {
		_, err := m.Migrate(context.Background(), vm.ID, s.src, s.src, 1.0)
		s.Equal(ErrSameHost, errors.Cause(err))
	}
	s.assertUnchanged()
}

func (s *MigrateTestSuite) TestExecutionFailureRollsBack() {
	s.executor.ok = false
	a, err := s.migrator(false, 0).Migrate(context.Background(), "vm-1", s.src, s.dst, 1.0)

	s.Equal(ErrExecutionFailure, errors.Cause(err))
	s.False(IsRejection(err))
	s.Equal(OutcomeExecutionFailure, a.Outcome)
	s.True(a.Executed)
	s.assertUnchanged()
	in, out := s.src.Counters()
	s.Equal(0, in)
	s.Equal(0, out)
	s.Equal(int64(1), s.counter("migration.rollback"))
	s.Equal(int64(1), s.counter("migration.execution_failure"))
}

func (s *MigrateTestSuite) TestExecutorErrorRollsBack() {
	s.executor.err = errors.New("api unavailable")
	_, err := s.migrator(false, 0).Migrate(context.Background(), "vm-3", s.src, s.dst, 1.0)

	s.Equal(ErrExecutionFailure, errors.Cause(err))
	s.Contains(err.Error(), "api unavailable")
	s.assertUnchanged()
}

func (s *MigrateTestSuite) TestExecutorTimeoutRollsBack() {
	s.executor.delay = time.Second
	_, err := s.migrator(false, 10*time.Millisecond).Migrate(context.Background(), "vm-3", s.src, s.dst, 1.0)

	s.Equal(ErrExecutionFailure, errors.Cause(err))
	s.assertUnchanged()
}

func (s *MigrateTestSuite) TestMissingExecutorFails() {
	m := New(Options{})
	_, err := m.Migrate(context.Background(), "vm-3", s.src, s.dst, 1.0)

	s.Equal(ErrExecutionFailure, errors.Cause(err))
	s.assertUnchanged()
}

func (s *MigrateTestSuite) TestUnknownVM() {
	a, err := s.migrator(false, 0).Migrate(context.Background(), "vm-4", s.src, s.dst, 1.0)

	s.Equal(ErrUnknownVM, errors.Cause(err))
	s.Equal(OutcomeUnknownVM, a.Outcome)
	s.False(IsRejection(err))
	s.assertUnchanged()
}

func TestMigrateTestSuite(t *testing.T) {
	suite.Run(t, new(MigrateTestSuite))
}

func vmIDs(vms []fleet.VM) []string {
	var result []string
	for _, vm := range vms {
		result = append(result, vm.ID)
	}
	return result
}
