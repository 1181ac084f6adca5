package runsummary

import (
	"os/user"

	"github.com/forgerepo/forge/internal/ci"
	"github.com/forgerepo/forge/internal/env"
	"github.com/forgerepo/forge/internal/scm"
	"github.com/forgerepo/forge/internal/turbopath"
)

type scmState struct {
	Type   string `json:"type"`
	Sha    string `json:"sha"`
	Branch string `json:"branch"`
}

// getSCMState returns the sha and branch when in a git repo.
// Otherwise it returns empty strings.
func getSCMState(dir turbopath.AbsoluteSystemPath) *scmState {
	allEnvVars := env.GetEnvMap()

	state := &scmState{Type: "git"}

	// If we're in CI, try to get the values we need from environment variables
	if ci.IsCi() {
		vendor := ci.Info()
		state.Sha = allEnvVars[vendor.ShaEnvVar]
		state.Branch = allEnvVars[vendor.BranchEnvVar]
	}

	// Otherwise fall back to asking git directly
	if state.Branch == "" {
		state.Branch = scm.GetCurrentBranch(dir)
	}
	if state.Sha == "" {
		state.Sha = scm.GetCurrentSha(dir)
	}

	return state
}

// getUser returns the current OS user's username, or "" if it can't be determined.
func getUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
