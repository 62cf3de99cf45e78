package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"analemma/internal/config"
	"analemma/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external tools the configuration needs. The
// daemon status and the CLI status command share this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "rclone",
			Command:     cfg.SyncBinary(),
			Description: "Required for remote sync",
			Optional:    !cfg.Sync.Enabled,
			VersionArgs: []string{"version"},
		},
	}
	if cfg.Camera.Driver == "command" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Capture command",
			Command:     cfg.Camera.Command,
			Description: "Required by the command camera driver",
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}
