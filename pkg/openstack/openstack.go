package openstack

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/segregate_const"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/hypervisors"
	livemigrate "github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/migrate"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/images"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/lthibault/jitterbug/v2"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/thoas/go-funk"
)

// New authenticates against keystone with the OS_* environment variables and
// returns a compute client.
func New(s segregate.Segregate, opts Options) (*Openstack, error) {
	authOpts, err := openstack.AuthOptionsFromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "auth options")
	}

	provider, err := openstack.AuthenticatedClient(authOpts)
	if err != nil {
		return nil, errors.Wrap(err, "auth client")
	}

	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{
		Region: os.Getenv("OS_REGION_NAME"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "compute")
	}

	return NewWithClient(s, client, opts), nil
}

// NewWithClient wraps an existing compute client.
func NewWithClient(s segregate.Segregate, client *gophercloud.ServiceClient, opts Options) *Openstack {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	return &Openstack{
		segregate:      s,
		client:         client,
		cache:          cache.New(30*time.Minute, 60*time.Minute),
		dedicated:      opts.Dedicated,
		pollInterval:   opts.PollInterval,
		blockMigration: opts.BlockMigration,
		log:            s.Log().WithField("context", "openstack"),
	}
}

// BuildHostList returns every hypervisor whose name contains filter, with
// the servers it runs attached.
func (o *Openstack) BuildHostList(filter string) ([]*fleet.Host, error) {
	hvs, err := o.GetHypervisors()
	if err != nil {
		return nil, err
	}

	var hosts []*fleet.Host
	byName := make(map[string]*fleet.Host)
	for _, hv := range hvs {
		name := hv.Service.Host
		if name == "" {
			name = hv.HypervisorHostname
		}
		if filter != "" && !strings.Contains(name, filter) && !strings.Contains(hv.HypervisorHostname, filter) {
			continue
		}
		if dup, ok := byName[name]; ok {
			o.Log().Warnf("Hypervisor %s shares compute host %s with %s, skipping it", hv.HypervisorHostname, name, dup.Name)
			continue
		}
		h := &fleet.Host{
			ID:          name,
			Name:        hv.HypervisorHostname,
			MemoryTotal: hv.MemoryMB,
			MemoryUsed:  hv.MemoryMBUsed,
			Dedicated:   funk.ContainsString(o.dedicated, name) || funk.ContainsString(o.dedicated, hv.HypervisorHostname),
		}
		byName[name] = h
		hosts = append(hosts, h)
	}

	if len(hosts) == 0 {
		return nil, errors.Wrapf(fleet.ErrInvalidHostList, "no hypervisor matches %q", filter)
	}

	srvs, err := o.GetServers()
	if err != nil {
		return nil, err
	}

	for _, srv := range srvs {
		h, ok := byName[srv.HypervisorName]
		if !ok {
			continue
		}
		vm, err := o.toVM(srv)
		if err != nil {
			o.Log().Errorf("Skipping server %s: %s", srv.Name, err)
			continue
		}
		h.AddVM(vm)
	}

	for _, h := range hosts {
		o.Log().Debugf("Hypervisor %s: %d VMs, %d windows, occupancy %.2f", h.Name, h.AmountOfVMs(), h.AmountOfWindowsVMs(false), h.OccupancyRatio())
	}
	return hosts, nil
}

func (o *Openstack) GetHypervisors() ([]Hypervisor, error) {
	allPages, err := hypervisors.List(o.client, hypervisors.ListOpts{}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "list hypervisors")
	}

	var s struct {
		Hypervisors []Hypervisor `json:"hypervisors"`
	}
	page, ok := allPages.(intoExtractor)
	if !ok {
		return nil, errors.New("list hypervisors: unexpected page type")
	}
	if err := page.ExtractInto(&s); err != nil {
		return nil, errors.Wrap(err, "extract hypervisors")
	}
	return s.Hypervisors, nil
}

// GetServers lists the servers of all tenants.
func (o *Openstack) GetServers() ([]Server, error) {
	allPages, err := servers.List(o.client, servers.ListOpts{AllTenants: true}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "list servers")
	}

	var result []Server
	if err := servers.ExtractServersInto(allPages, &result); err != nil {
		return nil, errors.Wrap(err, "extract servers")
	}
	return result, nil
}

func (o *Openstack) GetServer(id string) (*Server, error) {
	var s Server
	if err := servers.Get(o.client, id).ExtractInto(&s); err != nil {
		return nil, errors.Wrapf(err, "get server %s", id)
	}
	return &s, nil
}

// Execute live migrates the server to dstHostID and waits until it is
// active there. It returns false when the server ends up in error, comes
// back active on another host, or ctx expires.
func (o *Openstack) Execute(ctx context.Context, vmID, srcHostID, dstHostID string) (bool, error) {
	logger := o.Log().WithField("vm", vmID)

	serverInfo, err := o.GetServer(vmID)
	if err != nil {
		return false, err
	}
	if serverInfo.Status == statusMigrating {
		return false, errors.Errorf("server %s already in migration state", vmID)
	}

	logger.Infof("Migration process from %s to hypervisor %s started", srcHostID, dstHostID)

	host := dstHostID
	blockMigration := o.blockMigration
	err = livemigrate.LiveMigrate(o.client, vmID, livemigrate.LiveMigrateOpts{
		Host:           &host,
		BlockMigration: &blockMigration,
	}).ExtractErr()
	if err != nil {
		return false, errors.Wrapf(err, "live migrate %s", vmID)
	}

	ticker := jitterbug.New(o.pollInterval, &jitterbug.Norm{Stdev: o.pollInterval / 10})
	defer ticker.Stop()

	migrating := false
	for {
		select {
		case <-ctx.Done():
			return false, errors.Wrapf(ctx.Err(), "waiting for %s", vmID)
		case <-ticker.C:
		}

		serverInfo, err := o.GetServer(vmID)
		if err != nil {
			logger.Error(err)
			continue
		}

		switch serverInfo.Status {
		case statusMigrating:
			migrating = true
			logger.Infof("Server %s is still migrating", serverInfo.Name)
		case statusError:
			logger.Errorf("Server %s migration failed: %s", serverInfo.Name, serverInfo.Fault.Message)
			return false, nil
		case statusActive:
			if serverInfo.HypervisorName == dstHostID {
				logger.Infof("Server %s migration process is done", serverInfo.Name)
				return true, nil
			}
			if migrating || serverInfo.HypervisorName != srcHostID {
				logger.Errorf("Server %s is active on %s instead of %s", serverInfo.Name, serverInfo.HypervisorName, dstHostID)
				return false, nil
			}
		}
	}
}

func (o *Openstack) toVM(srv Server) (fleet.VM, error) {
	memory, err := o.flavorRAM(srv.Flavor)
	if err != nil {
		return fleet.VM{}, err
	}

	osType := srv.Metadata[metadataOSType]
	if osType == "" {
		osType, err = o.imageName(srv.Image)
		if err != nil {
			return fleet.VM{}, err
		}
	}

	return fleet.VM{
		ID:             srv.ID,
		DisplayName:    srv.Name,
		OSTemplate:     osType,
		MemoryRequired: memory,
		AffinityGroup:  srv.Metadata[metadataAffinityGroup],
		Domain:         srv.TenantID,
		InstanceName:   srv.InstanceName,
	}, nil
}

func (o *Openstack) flavorRAM(flavor map[string]interface{}) (int64, error) {
	if ram, ok := flavor["ram"].(float64); ok {
		return int64(ram), nil
	}

	id, ok := flavor["id"].(string)
	if !ok || id == "" {
		return 0, errors.New("server has no flavor")
	}

	key := "flavor:" + id
	if ram, found := o.cache.Get(key); found {
		return ram.(int64), nil
	}

	f, err := flavors.Get(o.client, id).Extract()
	if err != nil {
		return 0, errors.Wrapf(err, "get flavor %s", id)
	}
	o.cache.Set(key, int64(f.RAM), cache.DefaultExpiration)
	return int64(f.RAM), nil
}

func (o *Openstack) imageName(image interface{}) (string, error) {
	m, ok := image.(map[string]interface{})
	if !ok {
		// booted from volume
		return "", nil
	}
	id := fmt.Sprint(m["id"])

	key := "image:" + id
	if name, found := o.cache.Get(key); found {
		return name.(string), nil
	}

	img, err := images.Get(o.client, id).Extract()
	if err != nil {
		return "", errors.Wrapf(err, "get image %s", id)
	}
	o.cache.Set(key, img.Name, cache.DefaultExpiration)
	return img.Name, nil
}
