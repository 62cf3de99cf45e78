// Package daemon coordinates the long-running analemma process.
//
// It wires configuration, the capture workflow runner, the daily scheduler,
// the capture history store, and the USB camera hotplug monitor into a single
// lifecycle with flock-based locking to prevent multiple instances. Status
// snapshots combine scheduler, workflow, ledger, storage, camera, and
// dependency health for the IPC surface and the CLI.
//
// Keep orchestration logic here: the capture steps themselves live in the
// workflow package while the daemon focuses on startup, shutdown, and
// triggering.
package daemon
