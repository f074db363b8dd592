// Package rank orders hosts for placement decisions. None of the functions
// mutate the hosts they are given; an empty result means there is no
// candidate and must be checked before use.
package rank

import (
	"sort"

	"github.com/foxdalas/segregate/pkg/fleet"
)

// MostEmptyHosts sorts hosts by free memory, largest first. Ties go to the
// host with fewer VMs, then to input order.
func MostEmptyHosts(hosts []*fleet.Host) []*fleet.Host {
	result := clone(hosts)
	sort.Stable(byFreeMemory(result))
	return result
}

// MostWindowsHosts drops dedicated hosts and, when excludeFull is set, hosts
// with less than minFree memory left (no memory at all for minFree <= 0).
// The rest is sorted by the amount of windows VMs, largest first.
func MostWindowsHosts(hosts []*fleet.Host, excludeFull bool, minFree int64) []*fleet.Host {
	var result []*fleet.Host
	for _, h := range hosts {
		if h.Dedicated {
			continue
		}
		if excludeFull && h.IsFull(minFree) {
			continue
		}
		result = append(result, h)
	}
	sort.Stable(byWindowsDesc(result))
	return result
}

// LeastWindowsHosts drops dedicated hosts and hosts without windows VMs
// outside affinity groups, sorted by that amount, smallest first.
func LeastWindowsHosts(hosts []*fleet.Host) []*fleet.Host {
	var result []*fleet.Host
	for _, h := range hosts {
		if h.Dedicated {
			continue
		}
		if h.AmountOfWindowsVMs(true) == 0 {
			continue
		}
		result = append(result, h)
	}
	sort.Stable(byWindowsAffinityFreeAsc(result))
	return result
}

// ByOccupancy sorts hosts by occupancy ratio, least occupied first.
func ByOccupancy(hosts []*fleet.Host) []*fleet.Host {
	result := clone(hosts)
	sort.Stable(byOccupancy(result))
	return result
}

// NonDedicated returns the hosts that may take part in segregation.
func NonDedicated(hosts []*fleet.Host) []*fleet.Host {
	var result []*fleet.Host
	for _, h := range hosts {
		if !h.Dedicated {
			result = append(result, h)
		}
	}
	return result
}

// Without returns hosts minus the one with the given id.
func Without(hosts []*fleet.Host, id string) []*fleet.Host {
	result := make([]*fleet.Host, 0, len(hosts))
	for _, h := range hosts {
		if h.ID != id {
			result = append(result, h)
		}
	}
	return result
}

func clone(hosts []*fleet.Host) []*fleet.Host {
	result := make([]*fleet.Host, len(hosts))
	copy(result, hosts)
	return result
}
