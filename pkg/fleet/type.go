package fleet

import "github.com/pkg/errors"

// ErrInvalidHostList is returned when a host list can't be used for a
// segregation run.
var ErrInvalidHostList = errors.New("cannot handle an invalid list of hosts")

type VM struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`

	// OSTemplate is the template or os type name used to classify the guest.
	OSTemplate string `json:"os_template"`

	// MemoryRequired is in MiB. Zero means unit capacity (1).
	MemoryRequired int64 `json:"memory_required"`

	AffinityGroup string `json:"affinity_group,omitempty"`
	Domain        string `json:"domain,omitempty"`
	InstanceName  string `json:"instance_name,omitempty"`
}

// Host is a hypervisor together with the virtual machines it owns.
// MemoryAllocated is maintained by AddVM and migrations and always matches
// the sum of the owned VMs. MemoryUsed is what the hypervisor itself reports
// and is informational only.
type Host struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemoryTotal int64  `json:"memory_total"`
	MemoryUsed  int64  `json:"memory_used"`
	Dedicated   bool   `json:"dedicated"`

	allocated int64
	vms       []VM
	in        int
	out       int
}

// Fleet is an arena of hosts addressed by host id. Insertion order is kept
// for deterministic iteration.
type Fleet struct {
	hosts map[string]*Host
	order []string
}

// HostView is the serialisable form of a host with derived metrics.
type HostView struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Dedicated       bool    `json:"dedicated"`
	MemoryTotal     int64   `json:"memory_total"`
	MemoryUsed      int64   `json:"memory_used"`
	MemoryAllocated int64   `json:"memory_allocated"`
	MemoryFree      int64   `json:"memory_free"`
	OccupancyRatio  float64 `json:"occupancy_ratio"`
	WindowsVMs      int     `json:"windows_vms"`
	VMs             []VM    `json:"vms"`
}
