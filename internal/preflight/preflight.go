package preflight

import (
	"context"

	"anigiffy/internal/config"
)

// Minimum free resources for a healthy host.
const (
	MinFreeDisk        = 256 << 20
	MinAvailableMemory = 128 << 20
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace(ctx, "Data disk", cfg.Paths.DataDir, MinFreeDisk),
		CheckMemory(ctx, MinAvailableMemory),
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
