package fs

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	taskhash "github.com/forgerepo/forge/internal/fs/hash"
	"github.com/forgerepo/forge/internal/turbopath"
	"golang.org/x/crypto/blake2b"
)

// HashObject produces a canonical, host-independent hash of i's default
// string representation. Used for hashing small scalar values (env var
// values, config flags) that feed into a task's content hash.
func HashObject(i interface{}) (string, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	_, err = hash.Write([]byte(fmt.Sprintf("%v", i)))

	return hex.EncodeToString(hash.Sum(nil)), err
}

// HashFile hashes a file's contents directly, with no git object framing.
// Used for non-git-tracked inputs (e.g. lockfiles outside the repo root
// in some workspace layouts) where GitLikeHashFile's fast path doesn't apply.
func HashFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// GitLikeHashFile is a function that mimics how Git
// calculates the SHA1 for a file (or, in Git terms, a "blob") (without git)
func GitLikeHashFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}
	hash := sha1.New()
	hash.Write([]byte("blob"))
	hash.Write([]byte(" "))
	hash.Write([]byte(strconv.FormatInt(stat.Size(), 10)))
	hash.Write([]byte{0})

	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// HashTask produces the final content hash for a package-task combination
// from its assembled TaskHashable, by hashing the string representation of
// each field in a fixed order.
func HashTask(full *taskhash.TaskHashable) (string, error) {
	full.Outputs.Sort()
	sort.Strings(full.TaskDependencyHashes)
	sort.Strings(full.PassThruArgs)
	sort.Strings(full.Env)
	sort.Strings(full.PassThroughEnv)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(h, "%v", full.GlobalHash)
	fmt.Fprintf(h, "%v", full.TaskDependencyHashes)
	fmt.Fprintf(h, "%v", full.PackageDir)
	fmt.Fprintf(h, "%v", full.HashOfFiles)
	fmt.Fprintf(h, "%v", full.ExternalDepsHash)
	fmt.Fprintf(h, "%v", full.Task)
	fmt.Fprintf(h, "%v", full.Outputs)
	fmt.Fprintf(h, "%v", full.PassThruArgs)
	fmt.Fprintf(h, "%v", full.Env)
	fmt.Fprintf(h, "%v", full.ResolvedEnvVars)
	fmt.Fprintf(h, "%v", full.PassThroughEnv)
	fmt.Fprintf(h, "%v", full.EnvMode)
	fmt.Fprintf(h, "%v", full.DotEnv)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFileHashes produces a single hash summarizing a set of per-file content
// hashes, keyed by their path relative to the package that owns them. Sorting
// the keys first keeps the result independent of map iteration order.
func HashFileHashes(hashObject map[turbopath.AnchoredUnixPath]string) (string, error) {
	filePaths := make([]string, 0, len(hashObject))
	for filePath := range hashObject {
		filePaths = append(filePaths, filePath.ToString())
	}
	sort.Strings(filePaths)

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	for _, filePath := range filePaths {
		fmt.Fprintf(h, "%v=%v;", filePath, hashObject[turbopath.AnchoredUnixPath(filePath)])
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
