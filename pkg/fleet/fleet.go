package fleet

import (
	"strings"

	"github.com/pkg/errors"
)

// New validates hosts and builds the arena. The hosts are owned by the fleet
// from now on.
func New(hosts []*Host) (*Fleet, error) {
	if len(hosts) == 0 {
		return nil, errors.Wrap(ErrInvalidHostList, "empty host list")
	}

	f := &Fleet{
		hosts: make(map[string]*Host, len(hosts)),
		order: make([]string, 0, len(hosts)),
	}
	owners := make(map[string]string)

	for i, h := range hosts {
		if h == nil {
			return nil, errors.Wrapf(ErrInvalidHostList, "host #%d is nil", i)
		}
		if strings.TrimSpace(h.ID) == "" {
			return nil, errors.Wrapf(ErrInvalidHostList, "host #%d has no id", i)
		}
		if _, ok := f.hosts[h.ID]; ok {
			return nil, errors.Wrapf(ErrInvalidHostList, "duplicate host id %s", h.ID)
		}
		if h.MemoryTotal < 0 {
			return nil, errors.Wrapf(ErrInvalidHostList, "host %s has negative memory", h.ID)
		}
		for _, vm := range h.vms {
			if strings.TrimSpace(vm.ID) == "" {
				return nil, errors.Wrapf(ErrInvalidHostList, "host %s owns a vm without id", h.ID)
			}
			if vm.MemoryRequired < 0 {
				return nil, errors.Wrapf(ErrInvalidHostList, "vm %s has negative memory", vm.ID)
			}
			if owner, ok := owners[vm.ID]; ok {
				return nil, errors.Wrapf(ErrInvalidHostList, "vm %s is owned by %s and %s", vm.ID, owner, h.ID)
			}
			owners[vm.ID] = h.ID
		}
		f.hosts[h.ID] = h
		f.order = append(f.order, h.ID)
	}
	return f, nil
}

// Hosts returns the hosts in insertion order.
func (f *Fleet) Hosts() []*Host {
	result := make([]*Host, 0, len(f.order))
	for _, id := range f.order {
		result = append(result, f.hosts[id])
	}
	return result
}

func (f *Fleet) Host(id string) (*Host, bool) {
	h, ok := f.hosts[id]
	return h, ok
}

func (f *Fleet) Len() int {
	return len(f.order)
}

// Owner returns the host running the VM.
func (f *Fleet) Owner(vmID string) (*Host, bool) {
	for _, id := range f.order {
		h := f.hosts[id]
		if h.index(vmID) >= 0 {
			return h, true
		}
	}
	return nil, false
}

// HasWindowsVMs reports whether any non dedicated host runs a windows guest.
func (f *Fleet) HasWindowsVMs() bool {
	for _, h := range f.Hosts() {
		if !h.Dedicated && h.AmountOfWindowsVMs(false) > 0 {
			return true
		}
	}
	return false
}

// Views returns the serialisable representation of every host.
func (f *Fleet) Views() []HostView {
	result := make([]HostView, 0, len(f.order))
	for _, h := range f.Hosts() {
		result = append(result, h.View())
	}
	return result
}

// Verify recomputes allocations and VM ownership.
func (f *Fleet) Verify() error {
	owners := make(map[string]string)
	for _, h := range f.Hosts() {
		var sum int64
		for _, vm := range h.vms {
			sum += vm.Required()
			if owner, ok := owners[vm.ID]; ok {
				return errors.Errorf("vm %s is owned by %s and %s", vm.ID, owner, h.ID)
			}
			owners[vm.ID] = h.ID
		}
		if sum != h.allocated {
			return errors.Errorf("host %s allocates %d but its vms require %d", h.ID, h.allocated, sum)
		}
	}
	return nil
}

// Snapshot returns a deep copy of the fleet.
func (f *Fleet) Snapshot() *Fleet {
	c := &Fleet{
		hosts: make(map[string]*Host, len(f.order)),
		order: append([]string(nil), f.order...),
	}
	for id, h := range f.hosts {
		dup := *h
		dup.vms = append([]VM(nil), h.vms...)
		c.hosts[id] = &dup
	}
	return c
}

// Transfer moves a VM from src to dst in one step and returns its former
// position on src. Constraint checks are the caller's business.
func Transfer(vmID string, src, dst *Host) (int, error) {
	if src.Equal(dst) {
		return -1, errors.Errorf("vm %s: source and destination are both %s", vmID, src.ID)
	}
	i := src.index(vmID)
	if i < 0 {
		return -1, errors.Errorf("vm %s is not owned by %s", vmID, src.ID)
	}
	vm := src.removeAt(i)
	src.out++
	dst.insert(len(dst.vms), vm)
	dst.in++
	return i, nil
}

// Revert undoes a Transfer, putting the VM back at position at on src.
func Revert(vmID string, src, dst *Host, at int) error {
	i := dst.index(vmID)
	if i < 0 {
		return errors.Errorf("vm %s is not owned by %s", vmID, dst.ID)
	}
	vm := dst.removeAt(i)
	dst.in--
	src.insert(at, vm)
	src.out--
	return nil
}
