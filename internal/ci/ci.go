// Package ci is a simple utility to check if a program is being executed in common CI/CD/PaaS vendors.
// This is a partial port of https://github.com/watson/ci-info
package ci

import "os"

var isCI = os.Getenv("BUILD_ID") != "" || os.Getenv("BUILD_NUMBER") != "" || os.Getenv("CI") != "" || os.Getenv("CI_APP_ID") != "" || os.Getenv("CI_BUILD_ID") != "" || os.Getenv("CI_BUILD_NUMBER") != "" || os.Getenv("CI_NAME") != "" || os.Getenv("CONTINUOUS_INTEGRATION") != "" || os.Getenv("RUN_ID") != "" || os.Getenv("TEAMCITY_VERSION") != ""

// IsCi returns true if the program is executing in a CI/CD environment
func IsCi() bool {
	return isCI
}

// Name returns the name of the CI vendor
func Name() string {
	return Info().Name
}

// Constant returns the name of the CI vendor as a constant
func Constant() string {
	return Info().Constant
}

// Info returns information about a CI vendor
func Info() Vendor {
	for _, vendor := range Vendors {
		if vendor.EvalEnv != nil {
			for name, value := range vendor.EvalEnv {
				if os.Getenv(name) == value {
					return vendor
				}
			}
			continue
		}
		if len(vendor.Env.Any) > 0 {
			for _, envVar := range vendor.Env.Any {
				if os.Getenv(envVar) != "" {
					return vendor
				}
			}
		} else if len(vendor.Env.All) > 0 {
			all := true
			for _, envVar := range vendor.Env.All {
				if os.Getenv(envVar) == "" {
					all = false
					break
				}
			}
			if all {
				return vendor
			}
		}
	}
	return Vendor{}
}
