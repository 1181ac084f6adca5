// Package hash defines the structures that get fed into turbo's content
// hashing functions, kept separate from package fs to avoid a dependency
// cycle (fs needs to refer to these shapes; these shapes don't need fs).
package hash

import (
	"sort"

	"github.com/forgerepo/forge/internal/env"
	"github.com/forgerepo/forge/internal/turbopath"
	"github.com/forgerepo/forge/internal/util"
)

// TaskOutputs represents the patterns for a task's outputs, split into a set
// of inclusion and exclusion globs relative to the package that owns the task.
type TaskOutputs struct {
	Inclusions []string
	Exclusions []string
}

// Sort sorts both the Inclusions and Exclusions slices in place, so that the
// struct hashes consistently regardless of the order globs were declared in.
func (to *TaskOutputs) Sort() {
	sort.Strings(to.Inclusions)
	sort.Strings(to.Exclusions)
}

// TaskHashable is the definitive set of data that is used to calculate the
// hash for a single package-task combination.
type TaskHashable struct {
	GlobalHash           string
	TaskDependencyHashes []string
	PackageDir           turbopath.AnchoredUnixPath
	HashOfFiles          string
	ExternalDepsHash     string
	Task                 string
	Outputs              TaskOutputs
	PassThruArgs         []string
	Env                  []string
	ResolvedEnvVars      env.EnvironmentVariablePairs
	PassThroughEnv       []string
	EnvMode              util.EnvMode
	DotEnv               turbopath.AnchoredUnixPathArray
}
