package runcache

import (
	"github.com/forgerepo/forge/internal/fs"
	"github.com/forgerepo/forge/internal/nodes"
)

func Test_OutputGlobs() {
	pkg := fs.PackageJSON{}
	// We only care about the output globs
	taskDefinition := fs.TaskDefinition{
		Outputs:     []string{".next/**", ".next/cache/**"},
		ShouldCache: true,
	}
	packageCache := nodes.PackageTask{
		TaskID:         "foobar",
		Task:           "build",
		PackageName:    "docs",
		Pkg:            &pkg,
		TaskDefinition: &taskDefinition,
	}
}
