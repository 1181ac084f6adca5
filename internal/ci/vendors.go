package ci

// vendorEnv describes which environment variables identify a vendor's CI
// environment. Any is satisfied if at least one listed var is set; All
// requires every listed var to be set (used when a single var isn't a
// reliable enough signal on its own).
type vendorEnv struct {
	Any []string
	All []string
}

// Vendor describes a CI/CD vendor execution environment
type Vendor struct {
	// Name is the name of the vendor
	Name string
	// Constant is the environment variable prefix used by the vendor
	Constant string
	// Env describes the environment variable(s) that identify this vendor
	Env vendorEnv
	// EvalEnv is a key/value map of environment variables that can be used to quickly determine the vendor
	EvalEnv map[string]string
	// ShaEnvVar, if set, holds the commit sha for this vendor's CI environment
	ShaEnvVar string
	// BranchEnvVar, if set, holds the branch name for this vendor's CI environment
	BranchEnvVar string
}

func anyOf(vars ...string) vendorEnv {
	return vendorEnv{Any: vars}
}

// Vendors is a list of common CI/CD vendors
var Vendors = []Vendor{
	{
		Name:     "AppVeyor",
		Constant: "APPVEYOR",
		Env:      anyOf("APPVEYOR"),
	},
	{
		Name:         "Azure Pipelines",
		Constant:     "AZURE_PIPELINES",
		Env:          anyOf("SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"),
		ShaEnvVar:    "BUILD_SOURCEVERSION",
		BranchEnvVar: "BUILD_SOURCEBRANCHNAME",
	},
	{
		Name:     "Appcircle",
		Constant: "APPCIRCLE",
		Env:      anyOf("AC_APPCIRCLE"),
	},
	{
		Name:     "Bamboo",
		Constant: "BAMBOO",
		Env:      anyOf("bamboo_planKey"),
	},
	{
		Name:         "Bitbucket Pipelines",
		Constant:     "BITBUCKET",
		Env:          anyOf("BITBUCKET_COMMIT"),
		ShaEnvVar:    "BITBUCKET_COMMIT",
		BranchEnvVar: "BITBUCKET_BRANCH",
	},
	{
		Name:     "Bitrise",
		Constant: "BITRISE",
		Env:      anyOf("BITRISE_IO"),
	},
	{
		Name:     "Buddy",
		Constant: "BUDDY",
		Env:      anyOf("BUDDY_WORKSPACE_ID"),
	},
	{
		Name:         "Buildkite",
		Constant:     "BUILDKITE",
		Env:          anyOf("BUILDKITE"),
		ShaEnvVar:    "BUILDKITE_COMMIT",
		BranchEnvVar: "BUILDKITE_BRANCH",
	},
	{
		Name:         "CircleCI",
		Constant:     "CIRCLE",
		Env:          anyOf("CIRCLECI"),
		ShaEnvVar:    "CIRCLE_SHA1",
		BranchEnvVar: "CIRCLE_BRANCH",
	},
	{
		Name:     "Cirrus CI",
		Constant: "CIRRUS",
		Env:      anyOf("CIRRUS_CI"),
	},
	{
		Name:     "AWS CodeBuild",
		Constant: "CODEBUILD",
		Env:      anyOf("CODEBUILD_BUILD_ARN"),
	},
	{
		Name:     "Codefresh",
		Constant: "CODEFRESH",
		Env:      anyOf("CF_BUILD_ID"),
	},
	{
		Name:     "Codeship",
		Constant: "CODESHIP",
		EvalEnv: map[string]string{
			"CI_NAME": "codeship",
		},
	},
	{
		Name:     "Drone",
		Constant: "DRONE",
		Env:      anyOf("DRONE"),
	},
	{
		Name:     "dsari",
		Constant: "DSARI",
		Env:      anyOf("DSARI"),
	},
	{
		Name:         "GitHub Actions",
		Constant:     "GITHUB_ACTIONS",
		Env:          anyOf("GITHUB_ACTIONS"),
		ShaEnvVar:    "GITHUB_SHA",
		BranchEnvVar: "GITHUB_REF_NAME",
	},
	{
		Name:         "GitLab CI",
		Constant:     "GITLAB",
		Env:          anyOf("GITLAB_CI"),
		ShaEnvVar:    "CI_COMMIT_SHA",
		BranchEnvVar: "CI_COMMIT_REF_NAME",
	},
	{
		Name:     "GoCD",
		Constant: "GOCD",
		Env:      anyOf("GO_PIPELINE_LABEL"),
	},
	{
		Name:     "LayerCI",
		Constant: "LAYERCI",
		Env:      anyOf("LAYERCI"),
	},
	{
		Name:     "Hudson",
		Constant: "HUDSON",
		Env:      anyOf("HUDSON_URL"),
	},
	{
		Name:         "Jenkins",
		Constant:     "JENKINS",
		Env:          vendorEnv{All: []string{"JENKINS_URL", "BUILD_ID"}},
		ShaEnvVar:    "GIT_COMMIT",
		BranchEnvVar: "GIT_BRANCH",
	},
	{
		Name:     "Magnum CI",
		Constant: "MAGNUM",
		Env:      anyOf("MAGNUM"),
	},
	{
		Name:     "Netlify CI",
		Constant: "NETLIFY",
		Env:      anyOf("NETLIFY"),
	},
	{
		Name:     "Nevercode",
		Constant: "NEVERCODE",
		Env:      anyOf("NEVERCODE"),
	},
	{
		Name:     "Render",
		Constant: "RENDER",
		Env:      anyOf("RENDER"),
	},
	{
		Name:     "Sail CI",
		Constant: "SAIL",
		Env:      anyOf("SAILCI"),
	},
	{
		Name:     "Semaphore",
		Constant: "SEMAPHORE",
		Env:      anyOf("SEMAPHORE"),
	},
	{
		Name:     "Screwdriver",
		Constant: "SCREWDRIVER",
		Env:      anyOf("SCREWDRIVER"),
	},
	{
		Name:     "Shippable",
		Constant: "SHIPPABLE",
		Env:      anyOf("SHIPPABLE"),
	},
	{
		Name:     "Solano CI",
		Constant: "SOLANO",
		Env:      anyOf("TDDIUM"),
	},
	{
		Name:     "Strider CD",
		Constant: "STRIDER",
		Env:      anyOf("STRIDER"),
	},
	{
		Name:     "TaskCluster",
		Constant: "TASKCLUSTER",
		Env:      anyOf("TASK_ID", "RUN_ID"),
	},
	{
		Name:     "TeamCity",
		Constant: "TEAMCITY",
		Env:      anyOf("TEAMCITY_VERSION"),
	},
	{
		Name:         "Travis CI",
		Constant:     "TRAVIS",
		Env:          anyOf("TRAVIS"),
		ShaEnvVar:    "TRAVIS_COMMIT",
		BranchEnvVar: "TRAVIS_BRANCH",
	},
	{
		Name:         "Vercel",
		Constant:     "VERCEL",
		Env:          anyOf("NOW_BUILDER"),
		ShaEnvVar:    "VERCEL_GIT_COMMIT_SHA",
		BranchEnvVar: "VERCEL_GIT_COMMIT_REF",
	},
	{
		Name:     "Visual Studio App Center",
		Constant: "APPCENTER",
		Env:      anyOf("APPCENTER_BUILD_ID"),
	},
}
