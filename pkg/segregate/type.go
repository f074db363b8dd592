package segregate

import (
	"net/http"
	"sync"
	"time"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/metrics"
	"github.com/foxdalas/segregate/pkg/migrate"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
)

var (
	ErrInvalidMode         = errors.New("mode must be soft or hard")
	ErrInvalidThreshold    = errors.New("threshold must be at least 1")
	ErrInvalidMaxOccupancy = errors.New("maximum occupancy must be in (0, 1]")
	ErrNoInventory         = errors.New("no inventory configured")
	ErrBusy                = errors.New("a live segregation is already running")
)

// Inventory builds the host list a segregation run works on.
type Inventory interface {
	BuildHostList(filter string) ([]*fleet.Host, error)
}

type Segregate struct {
	Ver string
	log *log.Entry

	Mode             string
	Threshold        int
	MaxOccupancy     float64
	DryRun           bool
	FilteredDomains  []string
	Dedicated        []string
	Hosts            string
	MigrationTimeout time.Duration
	PollInterval     time.Duration
	BlockMigration   bool

	Daemon  bool
	Listen  string
	Metrics bool

	OSAuthURL    string
	OSTenantName string
	OSUsername   string
	OSPassword   string
	OSRegionName string

	Inventory Inventory
	Executor  migrate.Executor

	Scope          tally.Scope
	MetricsHandler http.Handler

	Exitcode int

	metrics *metrics.Metrics

	// live serialises runs that touch the hypervisors.
	live     sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Request describes a single segregation run.
type Request struct {
	Mode         string  `json:"mode"`
	Threshold    int     `json:"threshold"`
	MaxOccupancy float64 `json:"maxOccupancy"`
	DryRun       bool    `json:"dryRun"`
}
