package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/forgerepo/forge/internal/fs/hash"
	"github.com/forgerepo/forge/internal/turbopath"
	"github.com/forgerepo/forge/internal/util"
)

// RemoteCacheOptions holds the remote-cache toggles that can be set from
// turbo.json, layered on top of (and overridable by) the RemoteCacheConfig
// read from flags/env/the user config file.
type RemoteCacheOptions struct {
	TeamID    string `json:"teamId,omitempty"`
	Signature bool   `json:"signature,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// TurboJSON is the parsed, validated form of turbo.json (or the legacy
// "turbo" key in package.json).
type TurboJSON struct {
	GlobalDeps           []string
	GlobalEnv            []string
	GlobalPassThroughEnv []string
	GlobalDotEnv         turbopath.AnchoredUnixPathArray
	Pipeline             Pipeline
	RemoteCacheOptions   RemoteCacheOptions
	// Extends lists the workspace(s) a workspace-local turbo.json inherits
	// task definitions from. Only the root workspace is currently supported.
	Extends []string
}

// TurboJSONValidation inspects a whole TurboJSON and returns any problems it
// finds; more than one validation can run against the same document.
type TurboJSONValidation func(turboJSON *TurboJSON) []error

// Validate runs every validation in turn and flattens their results.
func (tj *TurboJSON) Validate(validations []TurboJSONValidation) []error {
	var errs []error
	for _, validate := range validations {
		errs = append(errs, validate(tj)...)
	}
	return errs
}

// MarshalJSON serializes a TurboJSON back to the turbo.json wire format.
func (tj *TurboJSON) MarshalJSON() ([]byte, error) {
	raw := rawTurboJSON{
		GlobalDependencies:   tj.GlobalDeps,
		GlobalEnv:            tj.GlobalEnv,
		GlobalPassThroughEnv: tj.GlobalPassThroughEnv,
		GlobalDotEnv:         tj.GlobalDotEnv,
		RemoteCache:          tj.RemoteCacheOptions,
		Extends:              tj.Extends,
	}
	if tj.Pipeline != nil {
		raw.Pipeline = map[string]rawTaskDefinition{}
		for taskName, bookkeeping := range tj.Pipeline {
			raw.Pipeline[taskName] = bookkeeping.toRaw()
		}
	}
	return json.Marshal(raw)
}

// Pipeline is turbo.json's map of task name (or package#task) to the task
// definition that configures it.
type Pipeline map[string]BookkeepingTaskDefinition

// GetTask looks up a task definition first by its fully-qualified taskID
// (package#task), then by its bare task name. Workspace-local turbo.json
// files declare tasks by bare name; the root turbo.json can declare either.
func (p Pipeline) GetTask(taskID string, taskName string) (*BookkeepingTaskDefinition, error) {
	if taskDef, ok := p[taskID]; ok {
		return &taskDef, nil
	}
	if taskDef, ok := p[taskName]; ok {
		return &taskDef, nil
	}
	return nil, fmt.Errorf("no task definition found for %q", taskID)
}

// taskDefinitionExperiments holds fields that haven't stabilized enough to
// live on the public TaskDefinition yet.
type taskDefinitionExperiments struct{}

// taskDefinitionHashable is the per-task configuration read directly off a
// turbo.json pipeline entry, before it has been merged with the rest of its
// extends chain.
type taskDefinitionHashable struct {
	Outputs                 hash.TaskOutputs
	Cache                   bool
	TopologicalDependencies []string
	TaskDependencies        []string
	Inputs                  []string
	OutputMode              util.TaskOutputMode
	Persistent              bool
	Env                     []string
	PassThroughEnv          []string
	DotEnv                  turbopath.AnchoredUnixPathArray
}

// BookkeepingTaskDefinition wraps a task definition with the set of fields it
// explicitly declared. MergeTaskDefinitions uses that set to decide whether a
// more specific definition (a workspace's turbo.json) overrides or inherits
// a field from a less specific one (the root turbo.json).
type BookkeepingTaskDefinition struct {
	definedFields      util.Set
	experimentalFields util.Set
	experimental       taskDefinitionExperiments
	TaskDefinition     taskDefinitionHashable
}

func (c *BookkeepingTaskDefinition) hasField(name string) bool {
	return c.definedFields != nil && c.definedFields.Includes(name)
}

// GetTaskDefinition converts the bookkeeping wrapper into the public
// TaskDefinition shape the task graph and hasher operate on.
func (c *BookkeepingTaskDefinition) GetTaskDefinition() *TaskDefinition {
	return &TaskDefinition{
		Outputs: TaskOutputs{
			Inclusions: c.TaskDefinition.Outputs.Inclusions,
			Exclusions: c.TaskDefinition.Outputs.Exclusions,
		},
		ShouldCache:             c.TaskDefinition.Cache,
		TopologicalDependencies: c.TaskDefinition.TopologicalDependencies,
		TaskDependencies:        c.TaskDefinition.TaskDependencies,
		Inputs:                  c.TaskDefinition.Inputs,
		OutputMode:              c.TaskDefinition.OutputMode,
		Persistent:              c.TaskDefinition.Persistent,
		Env:                     c.TaskDefinition.Env,
		PassThroughEnv:          c.TaskDefinition.PassThroughEnv,
		DotEnv:                  c.TaskDefinition.DotEnv,
	}
}

func (c *BookkeepingTaskDefinition) toRaw() rawTaskDefinition {
	outputs := c.TaskDefinition.Outputs.Inclusions
	if outputs == nil {
		outputs = []string{}
	}
	inputs := c.TaskDefinition.Inputs
	if inputs == nil {
		inputs = []string{}
	}
	return rawTaskDefinition{
		Outputs:         outputs,
		ExcludedOutputs: c.TaskDefinition.Outputs.Exclusions,
		Cache:           c.TaskDefinition.Cache,
		DependsOn:       append(topoDependsOn(c.TaskDefinition.TopologicalDependencies), c.TaskDefinition.TaskDependencies...),
		Inputs:          inputs,
		OutputMode:      c.TaskDefinition.OutputMode,
		Persistent:      c.TaskDefinition.Persistent,
		Env:             c.TaskDefinition.Env,
		PassThroughEnv:  c.TaskDefinition.PassThroughEnv,
		DotEnv:          c.TaskDefinition.DotEnv,
	}
}

func topoDependsOn(topoDeps []string) []string {
	out := make([]string, len(topoDeps))
	for i, dep := range topoDeps {
		out[i] = "^" + dep
	}
	return out
}

// TaskOutputs is the public, package-relative-glob shape of a task's outputs.
type TaskOutputs struct {
	Inclusions []string
	Exclusions []string
}

// Sort sorts the Inclusions and Exclusions slices in place.
func (to *TaskOutputs) Sort() {
	sort.Strings(to.Inclusions)
	sort.Strings(to.Exclusions)
}

// TaskDefinition defines the static-analysis information turbo uses to build
// the task graph and hash a package-task combination: what it depends on,
// what it produces, and how its cacheability/env visibility is configured.
type TaskDefinition struct {
	Outputs                 TaskOutputs
	ShouldCache             bool
	TopologicalDependencies []string
	TaskDependencies        []string
	Inputs                  []string
	OutputMode              util.TaskOutputMode
	Persistent              bool
	Env                     []string
	PassThroughEnv          []string
	DotEnv                  turbopath.AnchoredUnixPathArray
}

// MergeTaskDefinitions flattens a chain of task definitions (ordered from
// least to most specific, e.g. root turbo.json then workspace turbo.json)
// into a single TaskDefinition. A field only overrides its predecessor when
// the more specific definition declared it explicitly.
func MergeTaskDefinitions(taskDefinitions []BookkeepingTaskDefinition) (*TaskDefinition, error) {
	if len(taskDefinitions) == 0 {
		return nil, fmt.Errorf("no task definitions supplied")
	}

	merged := taskDefinitions[0].GetTaskDefinition()
	for _, bookkeeping := range taskDefinitions[1:] {
		td := bookkeeping.TaskDefinition
		if bookkeeping.hasField("Outputs") {
			merged.Outputs = TaskOutputs{Inclusions: td.Outputs.Inclusions, Exclusions: td.Outputs.Exclusions}
		}
		if bookkeeping.hasField("Cache") {
			merged.ShouldCache = td.Cache
		}
		if bookkeeping.hasField("DependsOn") {
			merged.TopologicalDependencies = td.TopologicalDependencies
			merged.TaskDependencies = td.TaskDependencies
		}
		if bookkeeping.hasField("Inputs") {
			merged.Inputs = td.Inputs
		}
		if bookkeeping.hasField("OutputMode") {
			merged.OutputMode = td.OutputMode
		}
		if bookkeeping.hasField("Persistent") {
			merged.Persistent = td.Persistent
		}
		if bookkeeping.hasField("Env") {
			merged.Env = td.Env
		}
		if bookkeeping.hasField("PassThroughEnv") {
			merged.PassThroughEnv = td.PassThroughEnv
		}
		if bookkeeping.hasField("DotEnv") {
			merged.DotEnv = td.DotEnv
		}
	}

	merged.Outputs.Sort()
	sort.Strings(merged.TopologicalDependencies)
	sort.Strings(merged.TaskDependencies)
	sort.Strings(merged.Env)
	sort.Strings(merged.PassThroughEnv)

	return merged, nil
}

// rawTurboJSON is the on-disk JSON shape of turbo.json.
type rawTurboJSON struct {
	GlobalDependencies   []string                        `json:"globalDependencies,omitempty"`
	GlobalEnv            []string                        `json:"globalEnv,omitempty"`
	GlobalPassThroughEnv []string                         `json:"globalPassThroughEnv"`
	GlobalDotEnv         turbopath.AnchoredUnixPathArray  `json:"globalDotEnv"`
	Pipeline             map[string]rawTaskDefinition     `json:"pipeline,omitempty"`
	RemoteCache          RemoteCacheOptions               `json:"remoteCache"`
	Extends              []string                         `json:"extends,omitempty"`
}

// rawTaskDefinition is the on-disk JSON shape of a single pipeline entry.
type rawTaskDefinition struct {
	Outputs         []string                        `json:"outputs"`
	ExcludedOutputs []string                         `json:"excludedOutputs,omitempty"`
	Cache           bool                             `json:"cache"`
	DependsOn       []string                         `json:"dependsOn"`
	Inputs          []string                         `json:"inputs"`
	OutputMode      util.TaskOutputMode              `json:"outputMode"`
	Persistent      bool                             `json:"persistent"`
	Env             []string                         `json:"env"`
	PassThroughEnv  []string                         `json:"passThroughEnv"`
	DotEnv          turbopath.AnchoredUnixPathArray  `json:"dotEnv"`
}

func validateNoDollarPrefix(key string, envVars []string) error {
	for _, v := range envVars {
		if strings.HasPrefix(v, "$") {
			return fmt.Errorf("You specified %q in the %q key. You should not prefix your environment variables with \"$\"", v, key)
		}
	}
	return nil
}

// readTurboConfig reads and parses the turbo.json at the given path.
func readTurboConfig(turboJSONPath turbopath.AbsoluteSystemPath) (*TurboJSON, error) {
	if !turboJSONPath.FileExists() {
		return nil, os.ErrNotExist
	}

	contents, err := turboJSONPath.ReadFile()
	if err != nil {
		return nil, err
	}

	return unmarshalTurboJSON(contents)
}

func unmarshalTurboJSON(contents []byte) (*TurboJSON, error) {
	var rawFields map[string]json.RawMessage
	if err := json.Unmarshal(contents, &rawFields); err != nil {
		return nil, err
	}

	var raw rawTurboJSON
	if err := json.Unmarshal(contents, &raw); err != nil {
		return nil, err
	}

	if err := validateNoDollarPrefix("globalEnv", raw.GlobalEnv); err != nil {
		return nil, err
	}

	turboJSON := &TurboJSON{
		GlobalDeps:           raw.GlobalDependencies,
		GlobalEnv:            raw.GlobalEnv,
		GlobalPassThroughEnv: raw.GlobalPassThroughEnv,
		GlobalDotEnv:         raw.GlobalDotEnv,
		RemoteCacheOptions:   raw.RemoteCache,
		Extends:              raw.Extends,
	}

	var rawPipelineFields map[string]map[string]json.RawMessage
	if pipelineRaw, ok := rawFields["pipeline"]; ok {
		_ = json.Unmarshal(pipelineRaw, &rawPipelineFields)
	}

	pipeline := Pipeline{}
	for taskName, rawTask := range raw.Pipeline {
		if err := validateNoDollarPrefix("env", rawTask.Env); err != nil {
			return nil, err
		}

		topoDeps := []string{}
		taskDeps := []string{}
		for _, dep := range rawTask.DependsOn {
			if strings.HasPrefix(dep, "^") {
				topoDeps = append(topoDeps, strings.TrimPrefix(dep, "^"))
			} else {
				taskDeps = append(taskDeps, dep)
			}
		}

		defined := util.SetFromStrings(definedFieldNames(rawPipelineFields[taskName]))

		cache := true
		if defined.Includes("Cache") {
			cache = rawTask.Cache
		}

		outputMode := rawTask.OutputMode
		if outputMode == "" {
			outputMode = util.FullTaskOutput
		}

		pipeline[taskName] = BookkeepingTaskDefinition{
			definedFields:      defined,
			experimentalFields: util.SetFromStrings([]string{}),
			experimental:       taskDefinitionExperiments{},
			TaskDefinition: taskDefinitionHashable{
				Outputs:                 hash.TaskOutputs{Inclusions: rawTask.Outputs, Exclusions: rawTask.ExcludedOutputs},
				Cache:                   cache,
				TopologicalDependencies: topoDeps,
				TaskDependencies:        taskDeps,
				Inputs:                  rawTask.Inputs,
				OutputMode:              outputMode,
				Persistent:              rawTask.Persistent,
				Env:                     rawTask.Env,
				PassThroughEnv:          rawTask.PassThroughEnv,
				DotEnv:                  rawTask.DotEnv,
			},
		}
	}
	turboJSON.Pipeline = pipeline

	return turboJSON, nil
}

// definedFieldNames maps the JSON keys present on a pipeline entry to the Go
// field names MergeTaskDefinitions checks with hasField.
func definedFieldNames(rawFields map[string]json.RawMessage) []string {
	names := []string{}
	fieldsByKey := map[string]string{
		"outputs":         "Outputs",
		"excludedOutputs": "Outputs",
		"cache":           "Cache",
		"dependsOn":       "DependsOn",
		"inputs":          "Inputs",
		"outputMode":      "OutputMode",
		"persistent":      "Persistent",
		"env":             "Env",
		"passThroughEnv":  "PassThroughEnv",
		"dotEnv":          "DotEnv",
	}
	seen := map[string]bool{}
	for key := range rawFields {
		if field, ok := fieldsByKey[key]; ok && !seen[field] {
			seen[field] = true
			names = append(names, field)
		}
	}
	return names
}

// LoadTurboConfig loads turbo.json for the given workspace, falling back to
// the legacy "turbo" key in package.json (root workspace only).
func LoadTurboConfig(dir turbopath.AbsoluteSystemPath, rootPackageJSON *PackageJSON, isSinglePackage bool) (*TurboJSON, error) {
	turboJSONPath := dir.UntypedJoin("turbo.json")

	turboJSON, err := readTurboConfig(turboJSONPath)
	if err == nil {
		return turboJSON, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("turbo.json: %w", err)
	}

	if rootPackageJSON != nil && rootPackageJSON.LegacyTurboConfig != nil {
		return rootPackageJSON.LegacyTurboConfig, nil
	}

	return nil, fmt.Errorf("Could not find turbo.json. Follow directions at https://turbo.build/repo/docs to create one: %w", err)
}
