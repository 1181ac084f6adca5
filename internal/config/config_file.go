package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/forgerepo/forge/internal/fs"
)

// RemoteCacheConfig is a configuration object for the logged-in remote-cache user.
type RemoteCacheConfig struct {
	// Token is a bearer token
	Token string `json:"token,omitempty"`
	// Team id
	TeamId string `json:"teamId,omitempty"`
	// ApiUrl is the remote cache backend url
	ApiUrl string `json:"apiUrl,omitempty" envconfig:"api"`
	// LoginUrl is the login url for the remote cache backend
	LoginUrl string `json:"loginUrl,omitempty" envconfig:"login"`
	// Owner slug
	TeamSlug string `json:"teamSlug,omitempty" envconfig:"team"`
}

func defaultUserConfig() *RemoteCacheConfig {
	return &RemoteCacheConfig{
		ApiUrl:   "https://cache.forgerepo.dev/api",
		LoginUrl: "https://cache.forgerepo.dev",
	}
}

func defaultRepoConfig() *RemoteCacheConfig {
	return &RemoteCacheConfig{
		ApiUrl:   "https://cache.forgerepo.dev/api",
		LoginUrl: "https://cache.forgerepo.dev",
	}
}

// writeConfigFile writes config file at a path
func writeConfigFile(fsys afero.Fs, path fs.AbsolutePath, config *RemoteCacheConfig) error {
	jsonBytes, marshallError := json.Marshal(config)
	if marshallError != nil {
		return marshallError
	}
	writeFilErr := fs.WriteFile(fsys, path, jsonBytes, 0644)
	if writeFilErr != nil {
		return writeFilErr
	}
	return nil
}

// WriteRepoConfigFile is used to write the portion of the config file that is saved
// within the repository itself.
func WriteRepoConfigFile(fsys afero.Fs, repoRoot fs.AbsolutePath, toWrite *RemoteCacheConfig) error {
	path := repoRoot.Join(".forge", "config.json")
	err := fs.EnsureDirFS(fsys, path)
	if err != nil {
		return err
	}
	return writeConfigFile(fsys, path, toWrite)
}

func userConfigPath(fsys afero.Fs) (fs.AbsolutePath, error) {
	path, err := xdg.ConfigFile(filepath.Join("forge", "config.json"))
	if err != nil {
		return "", err
	}
	absPath, err := fs.CheckedToAbsolutePath(path)
	if err != nil {
		return "", err
	}
	return absPath, nil
}

// WriteUserConfigFile writes the given configuration to a user-specific
// configuration file. This is for values that are not shared with a team, such
// as credentials.
func WriteUserConfigFile(fsys afero.Fs, config *RemoteCacheConfig) error {
	path, err := userConfigPath(fsys)
	if err != nil {
		return err
	}
	return writeConfigFile(fsys, path, config)
}

// readConfigFile reads a config file at a path
func readConfigFile(fsys afero.Fs, path fs.AbsolutePath, defaults func() *RemoteCacheConfig) (*RemoteCacheConfig, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	config := defaults()
	jsonErr := json.Unmarshal(b, config)
	if jsonErr != nil {
		return nil, jsonErr
	}
	return config, nil
}

// ReadUserConfigFile reads a user config file
func ReadUserConfigFile(fsys afero.Fs) (*RemoteCacheConfig, error) {
	path, err := userConfigPath(fsys)
	if err != nil {
		return nil, err
	}
	return readConfigFile(fsys, path, defaultUserConfig)
}

// ReadRepoConfigFile reads the repository-specific configuration values
func ReadRepoConfigFile(fsys afero.Fs, repoRoot fs.AbsolutePath) (*RemoteCacheConfig, error) {
	path := repoRoot.Join(".forge", "config.json")
	return readConfigFile(fsys, path, defaultRepoConfig)
}

// DeleteUserConfigFile deletes a user config file
func DeleteUserConfigFile(fsys afero.Fs) error {
	path, err := userConfigPath(fsys)
	if err != nil {
		return err
	}
	return fs.RemoveFile(fsys, path)
}
