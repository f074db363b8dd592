package openstack

import (
	"time"

	"github.com/foxdalas/segregate/pkg/segregate_const"
	"github.com/gophercloud/gophercloud"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	metadataOSType        = "os_type"
	metadataAffinityGroup = "affinity_group"

	statusActive    = "ACTIVE"
	statusMigrating = "MIGRATING"
	statusError     = "ERROR"
)

type Options struct {
	// Dedicated lists compute hosts that must not receive VMs.
	Dedicated []string

	// PollInterval is the mean interval between migration status checks.
	PollInterval   time.Duration
	BlockMigration bool
}

type Openstack struct {
	segregate segregate.Segregate
	client    *gophercloud.ServiceClient
	cache     *cache.Cache

	dedicated      []string
	pollInterval   time.Duration
	blockMigration bool

	log *logrus.Entry
}

type Hypervisor struct {
	ID                 interface{} `json:"id"`
	HypervisorHostname string      `json:"hypervisor_hostname"`
	HostIP             string      `json:"host_ip"`
	MemoryMB           int64       `json:"memory_mb"`
	MemoryMBUsed       int64       `json:"memory_mb_used"`
	RunningVMs         int         `json:"running_vms"`
	State              string      `json:"state"`
	Status             string      `json:"status"`
	Service            Service     `json:"service"`
}

type Service struct {
	Host string `json:"host"`
}

type Server struct {
	// ID uniquely identifies this server amongst all other servers,
	// including those not accessible to the current tenant.
	ID string `json:"id"`

	// TenantID identifies the tenant owning this server resource.
	TenantID string `json:"tenant_id"`

	Name string `json:"name"`

	// Status contains the current operational status of the server,
	// such as MIGRATING or ACTIVE.
	Status string `json:"status"`

	// Image is either an object with the image id or an empty string for
	// servers booted from volume.
	Image interface{} `json:"image"`

	// Flavor holds the flavor id, or the full flavor with microversion 2.47+.
	Flavor map[string]interface{} `json:"flavor"`

	Metadata map[string]string `json:"metadata"`

	Fault Fault `json:"fault"`

	HypervisorName     string `json:"OS-EXT-SRV-ATTR:host"`
	HypervisorHostname string `json:"OS-EXT-SRV-ATTR:hypervisor_hostname"`
	InstanceName       string `json:"OS-EXT-SRV-ATTR:instance_name"`
	TaskState          string `json:"OS-EXT-STS:task_state"`
}

type Fault struct {
	Code    int       `json:"code"`
	Created time.Time `json:"created"`
	Details string    `json:"details"`
	Message string    `json:"message"`
}

type intoExtractor interface {
	ExtractInto(interface{}) error
}
