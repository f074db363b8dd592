package fleet

import (
	"math"
	"sort"
	"strings"
)

const windowsPrefix = "win"

// HasAffinity reports whether the VM belongs to an affinity group.
func (vm VM) HasAffinity() bool {
	return strings.TrimSpace(vm.AffinityGroup) != ""
}

// IsWindows reports whether the guest belongs to the Microsoft Windows family.
func (vm VM) IsWindows() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(vm.OSTemplate)), windowsPrefix)
}

// Required returns the capacity the VM needs on a host.
func (vm VM) Required() int64 {
	if vm.MemoryRequired == 0 {
		return 1
	}
	return vm.MemoryRequired
}

func NewHost(id string, memoryTotal int64, dedicated bool) *Host {
	return &Host{
		ID:          id,
		Name:        id,
		MemoryTotal: memoryTotal,
		Dedicated:   dedicated,
	}
}

// Equal compares hosts by id only.
func (h *Host) Equal(other *Host) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.ID == other.ID
}

func (h *Host) MemoryAllocated() int64 {
	return h.allocated
}

func (h *Host) MemoryFree() int64 {
	return h.MemoryTotal - h.allocated
}

// OccupancyRatio is allocated/total rounded to two decimals, 0 for a host
// without memory.
func (h *Host) OccupancyRatio() float64 {
	if h.MemoryTotal == 0 {
		return 0
	}
	return round2(float64(h.allocated) / float64(h.MemoryTotal))
}

func (h *Host) AmountOfVMs() int {
	return len(h.vms)
}

// AmountOfWindowsVMs counts windows guests, skipping those with an affinity
// group when excludeAffinity is set.
func (h *Host) AmountOfWindowsVMs(excludeAffinity bool) int {
	counter := 0
	for _, vm := range h.vms {
		if !vm.IsWindows() {
			continue
		}
		if excludeAffinity && vm.HasAffinity() {
			continue
		}
		counter++
	}
	return counter
}

// WinRatio is the share of windows guests among all guests of the host.
func (h *Host) WinRatio(excludeAffinity bool) float64 {
	if len(h.vms) == 0 {
		return 0
	}
	return round2(float64(h.AmountOfWindowsVMs(excludeAffinity)) / float64(len(h.vms)))
}

func (h *Host) AmountOfAffinityVMs() int {
	counter := 0
	for _, vm := range h.vms {
		if vm.HasAffinity() {
			counter++
		}
	}
	return counter
}

// AffinityGroupList returns the distinct affinity groups present on the host,
// sorted.
func (h *Host) AffinityGroupList() []string {
	seen := make(map[string]struct{})
	var groups []string
	for _, vm := range h.vms {
		if !vm.HasAffinity() {
			continue
		}
		if _, ok := seen[vm.AffinityGroup]; ok {
			continue
		}
		seen[vm.AffinityGroup] = struct{}{}
		groups = append(groups, vm.AffinityGroup)
	}
	sort.Strings(groups)
	return groups
}

// HasAffinityGroup reports whether a VM of the given group runs on the host.
func (h *Host) HasAffinityGroup(group string) bool {
	for _, vm := range h.vms {
		if vm.HasAffinity() && vm.AffinityGroup == group {
			return true
		}
	}
	return false
}

func (h *Host) IsEmpty() bool {
	return len(h.vms) == 0
}

// IsFull reports whether less than minFree memory is left.
func (h *Host) IsFull(minFree int64) bool {
	if minFree <= 0 {
		return h.MemoryFree() <= 0
	}
	return h.MemoryFree() < minFree
}

// VMs returns a copy of the owned VMs in insertion order.
func (h *Host) VMs() []VM {
	out := make([]VM, len(h.vms))
	copy(out, h.vms)
	return out
}

func (h *Host) VM(id string) (VM, bool) {
	i := h.index(id)
	if i < 0 {
		return VM{}, false
	}
	return h.vms[i], true
}

// WindowsVMs returns the windows guests sorted by required memory, largest
// first when desc is set. Ties keep insertion order.
func (h *Host) WindowsVMs(desc bool) []VM {
	return h.filterSorted(func(vm VM) bool { return vm.IsWindows() }, desc)
}

// OtherVMs returns the non windows guests sorted like WindowsVMs.
func (h *Host) OtherVMs(desc bool) []VM {
	return h.filterSorted(func(vm VM) bool { return !vm.IsWindows() }, desc)
}

// Counters returns how many VMs migrated into and out of the host.
func (h *Host) Counters() (in, out int) {
	return h.in, h.out
}

// AddVM appends a VM during inventory construction. It does not touch the
// migration counters.
func (h *Host) AddVM(vm VM) {
	h.insert(len(h.vms), vm)
}

// View builds the serialisable representation of the host.
func (h *Host) View() HostView {
	return HostView{
		ID:              h.ID,
		Name:            h.Name,
		Dedicated:       h.Dedicated,
		MemoryTotal:     h.MemoryTotal,
		MemoryUsed:      h.MemoryUsed,
		MemoryAllocated: h.allocated,
		MemoryFree:      h.MemoryFree(),
		OccupancyRatio:  h.OccupancyRatio(),
		WindowsVMs:      h.AmountOfWindowsVMs(false),
		VMs:             h.VMs(),
	}
}

func (h *Host) index(id string) int {
	for i := range h.vms {
		if h.vms[i].ID == id {
			return i
		}
	}
	return -1
}

func (h *Host) insert(at int, vm VM) {
	if at < 0 || at > len(h.vms) {
		at = len(h.vms)
	}
	h.vms = append(h.vms, VM{})
	copy(h.vms[at+1:], h.vms[at:])
	h.vms[at] = vm
	h.allocated += vm.Required()
}

func (h *Host) removeAt(i int) VM {
	vm := h.vms[i]
	h.vms = append(h.vms[:i], h.vms[i+1:]...)
	h.allocated -= vm.Required()
	return vm
}

func (h *Host) filterSorted(keep func(VM) bool, desc bool) []VM {
	var result []VM
	for _, vm := range h.vms {
		if keep(vm) {
			result = append(result, vm)
		}
	}
	if desc {
		sort.Stable(vmsByMemoryDesc(result))
	} else {
		sort.Stable(vmsByMemory(result))
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
