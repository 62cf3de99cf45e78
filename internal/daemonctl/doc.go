// Package daemonctl starts and stops the background daemon on behalf of the
// CLI: detached launch, waiting for the IPC socket, graceful stop over IPC,
// and a SIGKILL fallback driven by the daemon's pid file.
package daemonctl
