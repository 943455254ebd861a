package capture

import (
	"github.com/AlterMundi/sai-cam-agent/internal/health"
)

// CommandHandler adapts the coordinator to internal/health.CommandHandler,
// letting the portal process's "force capture", "restart worker", and
// "update position" requests reach live camera workers over the health
// socket without the portal ever touching a camera directly.
type CommandHandler struct {
	coordinator *Coordinator
	setPosition func(cameraID, position string) error
}

// NewCommandHandler wraps coordinator. setPosition may be nil if this
// deployment has nowhere durable to persist a position label; a "position"
// command then always fails with a clear error instead of silently
// discarding the update.
func NewCommandHandler(coordinator *Coordinator, setPosition func(cameraID, position string) error) *CommandHandler {
	return &CommandHandler{coordinator: coordinator, setPosition: setPosition}
}

// HandleCommand implements internal/health.CommandHandler.
func (h *CommandHandler) HandleCommand(cmd health.Command) health.CommandResult {
	switch cmd.Cmd {
	case "capture":
		ok, err := h.coordinator.TriggerCapture(cmd.CameraID)
		if err != nil {
			return health.CommandResult{OK: false, Error: err.Error()}
		}
		if !ok {
			return health.CommandResult{OK: false, Error: "camera busy or disabled"}
		}
		return health.CommandResult{OK: true}

	case "restart":
		if err := h.coordinator.Restart(cmd.CameraID); err != nil {
			return health.CommandResult{OK: false, Error: err.Error()}
		}
		return health.CommandResult{OK: true}

	case "position":
		if h.setPosition == nil {
			return health.CommandResult{OK: false, Error: "position updates not supported on this node"}
		}
		if err := h.setPosition(cmd.CameraID, cmd.Value); err != nil {
			return health.CommandResult{OK: false, Error: err.Error()}
		}
		return health.CommandResult{OK: true}

	default:
		return health.CommandResult{OK: false, Error: "unknown command: " + cmd.Cmd}
	}
}
