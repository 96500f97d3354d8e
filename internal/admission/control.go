package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playchess/backend/internal/queue"
)

// ControlRequest is a client action on the session channel.
type ControlRequest struct {
	Action      string `json:"action"`
	TimeControl string `json:"time_control"`
}

// ControlResponse is the request/response reply on the session channel.
type ControlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(msg string) ControlResponse { return ControlResponse{Status: "success", Message: msg} }
func failure(msg string) ControlResponse { return ControlResponse{Status: "error", Message: msg} }

// HandleControl dispatches one control-plane message from an authenticated
// session. Malformed or unknown requests never mutate state.
func (g *Gateway) HandleControl(ctx context.Context, playerID string, raw []byte) ControlResponse {
	var req ControlRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure("Malformed request")
	}

	switch req.Action {
	case "join_queue":
		if err := g.Join(ctx, req.TimeControl, playerID); err != nil {
			return failure(joinErrorMessage(err))
		}
		return success(fmt.Sprintf("Joined %s queue", req.TimeControl))

	case "leave_queue":
		if err := g.Leave(ctx, req.TimeControl, playerID); err != nil {
			if errors.Is(err, ErrUnknownTimeControl) {
				return failure("Unknown time control")
			}
			return failure("Failed to leave queue")
		}
		return success(fmt.Sprintf("Left %s queue", req.TimeControl))

	default:
		return failure("Unknown action")
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnknownTimeControl):
		return "Unknown time control"
	case errors.Is(err, queue.ErrAlreadyQueued):
		return "Already queued"
	default:
		return "Failed to join queue"
	}
}
