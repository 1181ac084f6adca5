package config

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgerepo/forge/internal/fs"
	"github.com/forgerepo/forge/internal/turbopath"
	"github.com/forgerepo/forge/internal/ui"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
)

const (
	// EnvLogLevel is the environment variable used to set the log level.
	EnvLogLevel = "FORGE_LOG_LEVEL"
)

// IsCI returns true if stdout isn't a terminal or CI is set in the environment.
func IsCI() bool {
	return !ui.IsTTY || os.Getenv("CI") != ""
}

// Config holds everything a run needs to know about where it is and how to
// talk to the outside world: the parsed workspace config, the logger, and
// remote cache credentials.
type Config struct {
	Logger hclog.Logger
	// Version is the forge binary's own version string.
	Version string
	// RemoteConfig holds remote-cache credentials and endpoints, read from
	// the user/repo config files and overridden by flags and env vars.
	RemoteConfig *RemoteCacheConfig
	// RemoteCacheOpts carries remote-cache behavior flags (e.g. payload
	// signing) independent of where the credentials came from.
	RemoteCacheOpts RemoteCacheOpts
	// TurboJSON is the parsed turbo.json (or legacy turbo config loaded from
	// package.json).
	TurboJSON *fs.TurboJSON
	// RootPackageJSON at the root of the repo.
	RootPackageJSON *fs.PackageJSON
	// Cwd is the resolved working directory for this invocation.
	Cwd string
	// EnableAnalytics controls whether lifecycle events are recorded at all.
	EnableAnalytics bool
}

// RemoteCacheOpts controls remote-cache behaviors that aren't credentials.
type RemoteCacheOpts struct {
	// Signature, when true, requires and verifies an HMAC tag on every
	// artifact using FORGE_REMOTE_CACHE_SIGNATURE_KEY (mirrors the
	// filesystem cache's content-addressed guarantee over the network).
	Signature bool
}

// RemoteCacheEnabled reports whether we have enough information (a bearer
// token) to talk to the remote cache at all.
func (c *Config) RemoteCacheEnabled() bool {
	return c.RemoteConfig != nil && c.RemoteConfig.Token != ""
}

// ParseAndValidate parses the cmd line flags / env vars, and verifies that all required
// flags have been set. Users can pass in flags when calling a subcommand, or set env vars
// with the prefix 'FORGE_'. If both values are set, the flag value wins.
//
// userConfigPath is injected rather than resolved via xdg directly so tests
// can point it at a temp directory.
func ParseAndValidate(args []string, output *ui.Output, version string, userConfigPath fs.AbsolutePath) (c *Config, err error) {
	// Special check for ./forge invocation without any args
	// Return the help message
	if len(args) == 0 {
		args = append(args, "--help")
	}

	// Pop the subcommand into 'cmd'
	// flags.Parse does not work when the subcommand is included
	cmd, inputFlags := args[0], args[1:]

	// Special check for help commands
	if len(inputFlags) == 0 && (cmd == "help" || cmd == "--help" || cmd == "-help" || cmd == "version" || cmd == "--version" || cmd == "-version") {
		return nil, nil
	}
	if len(inputFlags) == 1 && (inputFlags[0] == "help" || inputFlags[0] == "--help" || inputFlags[0] == "-help") {
		return nil, nil
	}

	cwd, err := selectCwd(args)
	if err != nil {
		return nil, err
	}

	// Precedence is flags > env > config file > default
	packageJSONPath := turbopath.AbsoluteSystemPathFromUpstream(filepath.Join(cwd, "package.json"))
	rootPackageJSON, err := fs.ReadPackageJSON(packageJSONPath)
	if err != nil {
		return nil, fmt.Errorf("package.json: %w", err)
	}
	turboJSON, err := fs.LoadTurboConfig(turbopath.AbsoluteSystemPathFromUpstream(cwd), rootPackageJSON, false)
	if err != nil {
		return nil, err
	}

	fsys := afero.NewOsFs()
	userConfig, _ := readConfigFile(fsys, userConfigPath, defaultUserConfig)
	if userConfig == nil {
		userConfig = defaultUserConfig()
	}
	cwdAbs, cwdErr := fs.CheckedToAbsolutePath(cwd)
	if cwdErr != nil {
		return nil, cwdErr
	}
	repoConfig, _ := ReadRepoConfigFile(fsys, cwdAbs)
	if repoConfig == nil {
		repoConfig = defaultRepoConfig()
	}
	repoConfig.Token = userConfig.Token

	if enverr := envconfig.Process("FORGE", repoConfig); enverr != nil {
		return nil, fmt.Errorf("invalid environment variable: %w", enverr)
	}

	if repoConfig.Token == "" && IsCI() {
		repoConfig.Token = os.Getenv("FORGE_ARTIFACTS_TOKEN")
		repoConfig.TeamId = os.Getenv("FORGE_ARTIFACTS_OWNER")
	}

	enableAnalytics := true
	remoteCacheOpts := RemoteCacheOpts{}
	app := args[0]

	// Determine our log level if we have any. First override we check if env var.
	level := hclog.NoLevel
	if v := os.Getenv(EnvLogLevel); v != "" {
		level = hclog.LevelFromString(v)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("%s value %q is not a valid log level", EnvLogLevel, v)
		}
	}

	// Process arguments looking for `-v` flags to control the log level.
	// This overrides whatever the env var set.
	for _, arg := range args {
		if len(arg) != 0 && arg[0] != '-' {
			continue
		}
		switch {
		case arg == "-v":
			if level == hclog.NoLevel || level > hclog.Info {
				level = hclog.Info
			}
		case arg == "-vv":
			if level == hclog.NoLevel || level > hclog.Debug {
				level = hclog.Debug
			}
		case arg == "-vvv":
			if level == hclog.NoLevel || level > hclog.Trace {
				level = hclog.Trace
			}
		case strings.HasPrefix(arg, "--api="):
			apiURL := arg[len("--api="):]
			if _, err := url.ParseRequestURI(apiURL); err != nil {
				return nil, fmt.Errorf("%s is an invalid URL", apiURL)
			}
			repoConfig.ApiUrl = apiURL
		case strings.HasPrefix(arg, "--login="):
			loginURL := arg[len("--login="):]
			if _, err := url.ParseRequestURI(loginURL); err != nil {
				return nil, fmt.Errorf("%s is an invalid URL", loginURL)
			}
			repoConfig.LoginUrl = loginURL
		case strings.HasPrefix(arg, "--token="):
			repoConfig.Token = arg[len("--token="):]
		case strings.HasPrefix(arg, "--team="):
			repoConfig.TeamSlug = arg[len("--team="):]
		case arg == "--remote-cache-signature":
			remoteCacheOpts.Signature = true
		case arg == "--no-analytics":
			enableAnalytics = false
		default:
			continue
		}
	}

	// Default output is nowhere unless we enable logging.
	var logOutput io.Writer = ioutil.Discard
	color := hclog.ColorOff
	if level != hclog.NoLevel {
		logOutput = os.Stderr
		color = hclog.AutoColor
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   app,
		Level:  level,
		Color:  color,
		Output: logOutput,
	})

	if repoConfig.Token != "" && output != nil {
		output.Printf("%s", ui.Dim("• Remote caching enabled"))
	}

	c = &Config{
		Logger:          logger,
		Version:         version,
		RootPackageJSON: rootPackageJSON,
		TurboJSON:       turboJSON,
		Cwd:             cwd,
		RemoteConfig:    repoConfig,
		RemoteCacheOpts: remoteCacheOpts,
		EnableAnalytics: enableAnalytics,
	}

	return c, nil
}

// selectCwd selects the current working directory from the OS,
// overridden by the `--cwd=` input argument.
func selectCwd(inputArgs []string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	for _, arg := range inputArgs {
		if arg == "--" {
			break
		} else if strings.HasPrefix(arg, "--cwd=") {
			if len(arg[len("--cwd="):]) > 0 {
				cwd = arg[len("--cwd="):]
			}
		}
	}
	return cwd, nil
}
