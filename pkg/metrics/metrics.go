package metrics

import (
	"github.com/uber-go/tally/v4"
)

// Metrics contains the counters of segregation runs and migration attempts.
type Metrics struct {
	// MigrationSuccess counts migrations executed on the hypervisor.
	MigrationSuccess tally.Counter
	// MigrationSimulated counts dry run migrations.
	MigrationSimulated tally.Counter
	// MigrationRejected counts attempts refused by a placement constraint.
	MigrationRejected tally.Counter
	// MigrationExecutionFailure counts migrations the executor failed or
	// didn't finish in time.
	MigrationExecutionFailure tally.Counter
	MigrationRollback         tally.Counter

	RunSoft         tally.Counter
	RunHard         tally.Counter
	RunNoWork       tally.Counter
	RunHealthy      tally.Counter
	RunConverged    tally.Counter
	RunMaxRecursion tally.Counter

	// Pivots is the number of pivots selected by the last hard run.
	Pivots tally.Gauge
}

// New returns a new Metrics struct with all metrics rooted below the given
// tally scope.
func New(scope tally.Scope) *Metrics {
	migrationScope := scope.SubScope("migration")
	runScope := scope.SubScope("run")

	return &Metrics{
		MigrationSuccess:          migrationScope.Counter("success"),
		MigrationSimulated:        migrationScope.Counter("simulated"),
		MigrationRejected:         migrationScope.Counter("rejected"),
		MigrationExecutionFailure: migrationScope.Counter("execution_failure"),
		MigrationRollback:         migrationScope.Counter("rollback"),

		RunSoft:         runScope.Counter("soft"),
		RunHard:         runScope.Counter("hard"),
		RunNoWork:       runScope.Counter("no_work"),
		RunHealthy:      runScope.Counter("healthy"),
		RunConverged:    runScope.Counter("converged"),
		RunMaxRecursion: runScope.Counter("max_recursion"),

		Pivots: runScope.Gauge("pivots"),
	}
}

// Noop returns metrics bound to tally.NoopScope.
func Noop() *Metrics {
	return New(tally.NoopScope)
}
