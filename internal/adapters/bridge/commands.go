package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/rs/zerolog/log"
)

type command struct {
	Type      string           `json:"type"`
	Latitude  *float64         `json:"latitude,omitempty"`
	Longitude *float64         `json:"longitude,omitempty"`
	MessageID domain.MessageID `json:"message_id,omitempty"`
	FilePath  string           `json:"file_path,omitempty"`
	Enabled   bool             `json:"enabled,omitempty"`
}

func (ctl *Controller) handleCommand(ctx context.Context, c *wsClient, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("bad json")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "bad_payload"})
		return
	}

	switch cmd.Type {
	case "start_recording":
		if err := ctl.startRecording(ctx, c.token, cmd.location(ctl.opts.DefaultLocation)); err != nil {
			ctl.sendError(c, cmd.Type, err)
			return
		}
		ctl.sendJSON(c, envelope{Type: "recording", Data: map[string]bool{"recording": ctl.engine.IsRecording()}})
	case "stop_recording":
		ctl.engine.StopLocalRecording(ctx)
		ctl.sendJSON(c, envelope{Type: "recording", Data: map[string]bool{"recording": false}})
	case "play":
		ctl.handlePlay(ctx, c, cmd)
	case "ping":
		ctl.sendJSON(c, envelope{Type: "pong"})
	case "background":
		ctl.keepAlive.SetBackgroundMode(cmd.Enabled)
		ctl.sendJSON(c, envelope{Type: "background", Data: map[string]bool{"enabled": cmd.Enabled}})
	default:
		log.Warn().Str("module", "bridge").Str("type", cmd.Type).Msg("unknown command")
		ctl.sendJSON(c, map[string]any{"type": "error", "error": "unknown_command", "command": cmd.Type})
	}
}

func (cmd command) location(fallback domain.Location) domain.Location {
	loc := fallback
	if cmd.Latitude != nil && cmd.Longitude != nil {
		loc = domain.Location{Latitude: *cmd.Latitude, Longitude: *cmd.Longitude}
	}
	return loc
}

func (ctl *Controller) startRecording(ctx context.Context, client string, loc domain.Location) error {
	if !ctl.limiter.Allow(client) {
		return errRateLimited
	}
	return ctl.engine.StartLocalRecording(ctx, loc)
}

// resolve maps a play request to a stored recording. Only files the engine
// reported are playable.
func (ctl *Controller) resolve(id domain.MessageID, path string) (domain.Message, error) {
	if id != "" {
		if m, ok := ctl.hub.Message(id); ok {
			return m, nil
		}
		return domain.Message{}, fmt.Errorf("%w: %s", errUnknownMessage, id)
	}
	if m, ok := ctl.hub.MessageByPath(path); ok && path != "" {
		return m, nil
	}
	return domain.Message{}, fmt.Errorf("%w: %s", errUnknownMessage, path)
}

func (ctl *Controller) handlePlay(ctx context.Context, c *wsClient, cmd command) {
	msg, err := ctl.resolve(cmd.MessageID, cmd.FilePath)
	if err != nil {
		ctl.sendError(c, cmd.Type, err)
		return
	}
	ctl.engine.PlayFile(ctx, msg.FilePath, func(err error) {
		done := map[string]any{"message_id": msg.ID}
		if err != nil {
			done["error"] = err.Error()
		}
		ctl.sendJSON(c, envelope{Type: "play_complete", Data: done})
	})
}
