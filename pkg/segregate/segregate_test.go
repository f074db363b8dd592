package segregate

import (
	"context"
	"io"
	"testing"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/foxdalas/segregate/pkg/segregation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

type fakeInventory struct {
	err    error
	filter string
}

func (f *fakeInventory) BuildHostList(filter string) ([]*fleet.Host, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}

	h1 := fleet.NewHost("h1", 8192, false)
	h1.AddVM(fleet.VM{ID: "w1", OSTemplate: "Windows 2016", MemoryRequired: 1024})
	h1.AddVM(fleet.VM{ID: "w2", OSTemplate: "Windows 2019", MemoryRequired: 1024})

	h2 := fleet.NewHost("h2", 8192, false)
	h2.AddVM(fleet.VM{ID: "w3", OSTemplate: "windows 10", MemoryRequired: 1024})
	h2.AddVM(fleet.VM{ID: "l1", OSTemplate: "CentOS 7", MemoryRequired: 2048})

	return []*fleet.Host{h1, h2}, nil
}

type call struct {
	vm, src, dst string
}

func newTestSegregate(inv Inventory) (*Segregate, *[]call) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	calls := []call{}
	o := New("test", logrus.NewEntry(logger), tally.NewTestScope("", map[string]string{}))
	o.Hosts = "h"
	o.Mode = segregation.StrategySoft
	o.Threshold = 1
	o.MaxOccupancy = 0.9
	o.Inventory = inv
	o.Executor = migrate.ExecutorFunc(func(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error) {
		calls = append(calls, call{vmID, srcHostID, dstHostID})
		return true, nil
	})
	return o, &calls
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		err  error
	}{
		{"soft", Request{Mode: "soft", Threshold: 5, MaxOccupancy: 0.9}, nil},
		{"hard ignores threshold", Request{Mode: "hard", MaxOccupancy: 1}, nil},
		{"unknown mode", Request{Mode: "medium", Threshold: 5, MaxOccupancy: 0.9}, ErrInvalidMode},
		{"zero threshold", Request{Mode: "soft", MaxOccupancy: 0.9}, ErrInvalidThreshold},
		{"zero occupancy", Request{Mode: "hard"}, ErrInvalidMaxOccupancy},
		{"occupancy above one", Request{Mode: "hard", MaxOccupancy: 1.5}, ErrInvalidMaxOccupancy},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.req.Validate()
			if c.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, c.err, errors.Cause(err))
		})
	}
}

func TestSegregateDryRun(t *testing.T) {
	inv := &fakeInventory{}
	o, calls := newTestSegregate(inv)

	hosts, err := o.HostList()
	require.NoError(t, err)
	assert.Equal(t, "h", inv.filter)

	req := o.Request()
	req.DryRun = true
	report, err := o.Segregate(context.Background(), hosts, req)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, segregation.StatusConverged, report.Status)
	require.Len(t, report.Migrations(), 1)
	assert.Equal(t, "w3", report.Migrations()[0].VMID)
	assert.Empty(t, *calls)
}

func TestSegregateLive(t *testing.T) {
	o, calls := newTestSegregate(&fakeInventory{})

	hosts, err := o.HostList()
	require.NoError(t, err)

	report, err := o.Segregate(context.Background(), hosts, o.Request())
	require.NoError(t, err)

	assert.False(t, report.DryRun)
	assert.Equal(t, segregation.StatusConverged, report.Status)
	assert.Equal(t, []call{{"w3", "h2", "h1"}}, *calls)
	assert.Equal(t, 3, hosts[0].AmountOfWindowsVMs(false))
	assert.Equal(t, 0, hosts[1].AmountOfWindowsVMs(false))
}

func TestSegregateHard(t *testing.T) {
	o, calls := newTestSegregate(&fakeInventory{})

	hosts, err := o.HostList()
	require.NoError(t, err)

	report, err := o.Segregate(context.Background(), hosts, Request{Mode: "hard", MaxOccupancy: 0.9, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, segregation.StrategyHard, report.Strategy)
	assert.NotEmpty(t, report.Pivots)
	assert.Empty(t, *calls)
}

func TestSegregateRejectsInvalidRequest(t *testing.T) {
	o, _ := newTestSegregate(&fakeInventory{})

	report, err := o.Segregate(context.Background(), nil, Request{Mode: "soft", Threshold: 0, MaxOccupancy: 0.9})
	assert.Nil(t, report)
	assert.Equal(t, ErrInvalidThreshold, errors.Cause(err))
}

func TestSegregateLiveRunsAreExclusive(t *testing.T) {
	o, calls := newTestSegregate(&fakeInventory{})
	hosts, err := o.HostList()
	require.NoError(t, err)

	o.live.Lock()
	_, err = o.Segregate(context.Background(), hosts, o.Request())
	assert.Equal(t, ErrBusy, err)

	req := o.Request()
	req.DryRun = true
	_, err = o.Segregate(context.Background(), hosts, req)
	assert.NoError(t, err, "dry runs don't wait for live runs")
	o.live.Unlock()

	assert.Empty(t, *calls)
}

func TestHostListWithoutInventory(t *testing.T) {
	o, _ := newTestSegregate(nil)
	_, err := o.HostList()
	assert.Equal(t, ErrNoInventory, err)
}

func TestInitReportsInventoryErrors(t *testing.T) {
	o, _ := newTestSegregate(&fakeInventory{err: errors.New("keystone unavailable")})
	o.Init()
	assert.Equal(t, 1, o.Exitcode)
}

func TestInitRunsConfiguredStrategy(t *testing.T) {
	o, calls := newTestSegregate(&fakeInventory{})
	o.Init()
	assert.Equal(t, 0, o.Exitcode)
	assert.Len(t, *calls, 1)
}

func TestStopCancelsContext(t *testing.T) {
	o, _ := newTestSegregate(&fakeInventory{})
	ctx, cancel := o.Context()
	defer cancel()

	o.Stop()
	o.Stop()

	<-ctx.Done()
	assert.Equal(t, context.Canceled, ctx.Err())
	select {
	case <-o.Done():
	default:
		t.Fatal("stop channel is still open")
	}
}

func TestGoRunsInBackground(t *testing.T) {
	o, calls := newTestSegregate(&fakeInventory{})
	hosts, err := o.HostList()
	require.NoError(t, err)

	done := make(chan *segregation.Report, 1)
	err = o.Go(context.Background(), hosts, o.Request(), func(r *segregation.Report, err error) {
		assert.NoError(t, err)
		done <- r
	})
	require.NoError(t, err)

	report := <-done
	assert.Equal(t, segregation.StatusConverged, report.Status)
	assert.Len(t, *calls, 1)

	// the live lock is released once the run is over
	assert.True(t, o.live.TryLock())
	o.live.Unlock()
}

func TestGoRejectsWhileLiveRunInProgress(t *testing.T) {
	o, _ := newTestSegregate(&fakeInventory{})
	hosts, err := o.HostList()
	require.NoError(t, err)

	o.live.Lock()
	defer o.live.Unlock()

	err = o.Go(context.Background(), hosts, o.Request(), func(*segregation.Report, error) {
		t.Error("run must not start")
	})
	assert.Equal(t, ErrBusy, err)
}
