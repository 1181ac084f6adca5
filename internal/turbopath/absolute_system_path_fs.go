package turbopath

import (
	"io/ioutil"
	"os"
	"path/filepath"
)

// dirPermissions are the default permission bits applied to directories
// created on behalf of an AbsoluteSystemPath.
const dirPermissions = os.ModeDir | 0775

// UntypedJoin appends raw path segments (not yet typed as Relative*Path)
// to this AbsoluteSystemPath. Used at the edges, where a hash or a
// filename is computed as a plain string.
func (p AbsoluteSystemPath) UntypedJoin(segments ...string) AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Join(append([]string{p.ToString()}, segments...)...))
}

// Dir returns the AbsoluteSystemPath of the directory containing p.
func (p AbsoluteSystemPath) Dir() AbsoluteSystemPath {
	return AbsoluteSystemPath(filepath.Dir(p.ToString()))
}

// MkdirAll implements os.MkdirAll for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) MkdirAll(mode os.FileMode) error {
	return os.MkdirAll(p.ToString(), mode)
}

// Open implements os.Open for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Open() (*os.File, error) {
	return os.Open(p.ToString())
}

// OpenFile implements os.OpenFile for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) OpenFile(flags int, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(p.ToString(), flags, mode)
}

// Create implements os.Create for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Create() (*os.File, error) {
	return os.Create(p.ToString())
}

// FileExists returns true if the given path exists and is not a directory.
func (p AbsoluteSystemPath) FileExists() bool {
	info, err := os.Lstat(p.ToString())
	return err == nil && !info.IsDir()
}

// DirExists returns true if this path points to a directory.
func (p AbsoluteSystemPath) DirExists() bool {
	info, err := p.Lstat()
	return err == nil && info.IsDir()
}

// Lstat implements os.Lstat for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Lstat() (os.FileInfo, error) {
	return os.Lstat(p.ToString())
}

// ReadFile reads the full contents of the file at p.
func (p AbsoluteSystemPath) ReadFile() ([]byte, error) {
	return ioutil.ReadFile(p.ToString())
}

// WriteFile writes contents to the file at p, creating it if necessary.
func (p AbsoluteSystemPath) WriteFile(contents []byte, mode os.FileMode) error {
	return ioutil.WriteFile(p.ToString(), contents, mode)
}

// EnsureDir ensures the parent directory of p exists.
func (p AbsoluteSystemPath) EnsureDir() error {
	dir := filepath.Dir(p.ToString())
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil && AbsoluteSystemPath(dir).FileExists() {
		if rmErr := os.Remove(dir); rmErr == nil {
			return os.MkdirAll(dir, dirPermissions)
		}
		return err
	}
	return err
}

// Symlink implements os.Symlink(target, p) for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Symlink(target string) error {
	return os.Symlink(target, p.ToString())
}

// Readlink implements os.Readlink for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Readlink() (string, error) {
	return os.Readlink(p.ToString())
}

// Remove removes the file or empty directory at p.
func (p AbsoluteSystemPath) Remove() error {
	return os.Remove(p.ToString())
}

// RemoveAll implements os.RemoveAll for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) RemoveAll() error {
	return os.RemoveAll(p.ToString())
}

// Rename implements os.Rename(p, dest) for AbsoluteSystemPath.
func (p AbsoluteSystemPath) Rename(dest AbsoluteSystemPath) error {
	return os.Rename(p.ToString(), dest.ToString())
}

// Base implements filepath.Base for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Base() string {
	return filepath.Base(p.ToString())
}

// Ext implements filepath.Ext for an AbsoluteSystemPath.
func (p AbsoluteSystemPath) Ext() string {
	return filepath.Ext(p.ToString())
}
