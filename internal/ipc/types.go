package ipc

import (
	"analemma/internal/daemon"
	"analemma/internal/workflow"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "Analemma"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the daemon status snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// TriggerRequest runs one capture immediately.
type TriggerRequest struct{}

// TriggerResponse reports the capture outcome. Busy is set when another run
// held the gate and nothing was attempted.
type TriggerResponse struct {
	Outcome workflow.Outcome `json:"outcome"`
	Busy    bool             `json:"busy"`
	Message string           `json:"message"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates the stop request was accepted.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
