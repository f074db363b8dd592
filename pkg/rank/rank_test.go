package rank

import (
	"fmt"
	"testing"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/stretchr/testify/assert"
)

func host(id string, total int64, dedicated bool, win, linux int) *fleet.Host {
	h := fleet.NewHost(id, total, dedicated)
	for i := 0; i < win; i++ {
		h.AddVM(fleet.VM{ID: fmt.Sprintf("%s-win-%d", id, i), OSTemplate: "Windows"})
	}
	for i := 0; i < linux; i++ {
		h.AddVM(fleet.VM{ID: fmt.Sprintf("%s-lin-%d", id, i), OSTemplate: "Ubuntu"})
	}
	return h
}

func ids(hosts []*fleet.Host) []string {
	result := []string{}
	for _, h := range hosts {
		result = append(result, h.ID)
	}
	return result
}

func TestMostEmptyHosts(t *testing.T) {
	a := host("a", 10, false, 2, 2) // free 6, 4 vms
	b := host("b", 8, false, 1, 1)  // free 6, 2 vms
	c := host("c", 10, false, 0, 0) // free 10
	d := host("d", 5, false, 1, 0)  // free 4

	hosts := []*fleet.Host{a, b, c, d}
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids(MostEmptyHosts(hosts)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(hosts), "input must not be reordered")
}

func TestMostWindowsHosts(t *testing.T) {
	a := host("a", 10, false, 2, 0)
	b := host("b", 10, true, 9, 0)
	c := host("c", 5, false, 5, 0) // full
	d := host("d", 10, false, 4, 0)

	hosts := []*fleet.Host{a, b, c, d}
	assert.Equal(t, []string{"d", "a"}, ids(MostWindowsHosts(hosts, true, 0)))
	assert.Equal(t, []string{"c", "d", "a"}, ids(MostWindowsHosts(hosts, false, 0)))
	assert.Equal(t, []string{"a"}, ids(MostWindowsHosts(hosts, true, 7)))
}

func TestLeastWindowsHosts(t *testing.T) {
	a := host("a", 10, false, 3, 0)
	b := host("b", 10, false, 1, 0)
	c := host("c", 10, false, 0, 4)
	d := host("d", 10, true, 1, 0)
	e := fleet.NewHost("e", 10, false)
	e.AddVM(fleet.VM{ID: "e-1", OSTemplate: "Windows", AffinityGroup: "G1"})

	assert.Equal(t, []string{"b", "a"}, ids(LeastWindowsHosts([]*fleet.Host{a, b, c, d, e})))
}

func TestEmptyInputs(t *testing.T) {
	assert.Empty(t, MostEmptyHosts(nil))
	assert.Empty(t, MostWindowsHosts(nil, true, 0))
	assert.Empty(t, LeastWindowsHosts([]*fleet.Host{host("a", 10, false, 0, 3)}))
}

func TestByOccupancyAndHelpers(t *testing.T) {
	a := host("a", 10, false, 5, 0)
	b := host("b", 10, true, 1, 0)
	c := host("c", 10, false, 2, 0)

	hosts := []*fleet.Host{a, b, c}
	assert.Equal(t, []string{"b", "c", "a"}, ids(ByOccupancy(hosts)))
	assert.Equal(t, []string{"a", "c"}, ids(NonDedicated(hosts)))
	assert.Equal(t, []string{"a", "b"}, ids(Without(hosts, "c")))
}
