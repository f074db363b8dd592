package cmd

import (
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/foxdalas/segregate/pkg/openstack"
	"github.com/foxdalas/segregate/pkg/rest"
	"github.com/foxdalas/segregate/pkg/segregate"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/thoas/go-funk"
	"github.com/uber-go/tally/v4"
	tallyprom "github.com/uber-go/tally/v4/prometheus"
)

func Run(version string) {
	o := segregate.New(version, makeLog(), nil)

	// parse env vars
	err := params(o, os.Args[1:])
	if err != nil {
		o.Log().Fatal(err)
	}

	closer := initMetrics(o)
	defer closer.Close()

	//Connections
	createConnect(o)

	if o.Daemon {
		rest.Init(o)
	} else {
		o.Init()
	}

	if o.Exitcode != 0 {
		closer.Close()
		os.Exit(o.Exitcode)
	}
}

func makeLog() *log.Entry {
	logtype := strings.ToLower(os.Getenv("LOG_TYPE"))
	if logtype == "" {
		logtype = "text"
	}
	if logtype == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if logtype == "text" {
		log.SetFormatter(&log.TextFormatter{
			ForceColors: true,
		})
	} else {
		log.WithField("logtype", logtype).Fatal("Given logtype was not valid, check LOG_TYPE configuration")
		os.Exit(1)
	}

	log.SetLevel(logLevel(os.Getenv("LOG_LEVEL")))
	return log.WithField("context", "segregate")
}

func logLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// initMetrics binds the application to a prometheus backed root scope when
// metrics are enabled.
func initMetrics(o *segregate.Segregate) io.Closer {
	if !o.Metrics {
		return nopCloser{}
	}

	reporter := tallyprom.NewReporter(tallyprom.Options{})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "segregate",
		Tags:           map[string]string{},
		CachedReporter: reporter,
		Separator:      "_",
	}, time.Second)

	o.SetScope(scope)
	o.MetricsHandler = reporter.HTTPHandler()
	o.Log().Info("Setting up prometheus metrics handler at /metrics")
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func createConnect(o *segregate.Segregate) {
	stack, err := openstack.New(o, openstack.Options{
		Dedicated:      o.Dedicated,
		PollInterval:   o.PollInterval,
		BlockMigration: o.BlockMigration,
	})
	if err != nil {
		o.Log().Fatal(err)
	}
	o.Inventory = stack
	o.Executor = stack
}

func params(o *segregate.Segregate, args []string) error {
	var filteredDomains, dedicated string

	fs := flag.NewFlagSet("segregate", flag.ContinueOnError)
	fs.StringVar(&o.Mode, "mode", "soft", "Segregation mode: soft or hard")
	fs.IntVar(&o.Threshold, "threshold", 5, "Soft mode: hosts with at most this many windows VMs are drained")
	fs.Float64Var(&o.MaxOccupancy, "maxOccupancy", 0.9, "Maximum memory occupancy of a destination host")
	fs.BoolVar(&o.DryRun, "dryRun", true, "Simulate migrations without calling the hypervisors")
	fs.StringVar(&filteredDomains, "filteredDomains", "", "Comma separated domains (projects) whose VMs are never migrated")
	fs.StringVar(&dedicated, "dedicated", "", "Comma separated hosts that must not receive VMs")
	fs.StringVar(&o.Hosts, "hosts", "", "Only segregate hypervisors matching this name")
	fs.DurationVar(&o.MigrationTimeout, "migrationTimeout", time.Hour, "Maximum duration of one live migration")
	fs.DurationVar(&o.PollInterval, "pollInterval", 10*time.Second, "Interval between migration status checks")
	fs.BoolVar(&o.BlockMigration, "blockMigration", false, "Use block live migration")
	fs.BoolVar(&o.Daemon, "daemon", false, "Use HTTP daemon")
	fs.StringVar(&o.Listen, "listen", ":1323", "HTTP daemon listen address")
	fs.BoolVar(&o.Metrics, "metrics", false, "Expose prometheus metrics at /metrics")

	if err := fs.Parse(args); err != nil {
		return err
	}

	o.FilteredDomains = splitList(filteredDomains)
	o.Dedicated = splitList(dedicated)

	if !funk.ContainsString(segregate.Modes, o.Mode) {
		return errors.Errorf("Please provide -mode %s", strings.Join(segregate.Modes, " or "))
	}

	if !o.Daemon {
		if err := o.Request().Validate(); err != nil {
			return err
		}
	}

	o.OSAuthURL = os.Getenv("OS_AUTH_URL")
	if len(o.OSAuthURL) == 0 {
		return errors.New("Please provide OS_AUTH_URL")
	}

	o.OSTenantName = os.Getenv("OS_TENANT_NAME")
	if len(o.OSTenantName) == 0 {
		return errors.New("Please provide OS_TENANT_NAME")
	}

	o.OSUsername = os.Getenv("OS_USERNAME")
	if len(o.OSUsername) == 0 {
		return errors.New("Please provide OS_USERNAME")
	}

	o.OSPassword = os.Getenv("OS_PASSWORD")
	if len(o.OSPassword) == 0 {
		return errors.New("Please provide OS_PASSWORD")
	}

	o.OSRegionName = os.Getenv("OS_REGION_NAME")

	return nil
}

func splitList(s string) []string {
	items := strings.Split(s, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return funk.FilterString(items, func(item string) bool {
		return item != ""
	})
}
