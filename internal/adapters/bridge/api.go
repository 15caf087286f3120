package bridge

import (
	"errors"
	"net/http"
	"os"

	"github.com/dkeye/sltalkie/internal/audio"
	"github.com/dkeye/sltalkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type recordRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type playRequest struct {
	MessageID domain.MessageID `json:"message_id"`
	FilePath  string           `json:"file_path"`
}

type backgroundRequest struct {
	Enabled bool `json:"enabled"`
}

func (ctl *Controller) getMessages(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.hub.Messages())
}

func (ctl *Controller) getPeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peers":     ctl.engine.Peers(),
		"connected": ctl.engine.ConnectedPeers(),
	})
}

func (ctl *Controller) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.snapshot())
}

// getAudio serves a stored recording as WAV.
func (ctl *Controller) getAudio(c *gin.Context) {
	msg, ok := ctl.hub.Message(domain.MessageID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown message"})
		return
	}
	f, err := os.Open(msg.FilePath)
	if err != nil {
		log.Warn().Err(err).Str("module", "bridge").Str("file", msg.FilePath).Msg("open recording")
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not available"})
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "audio/wav")
	c.Status(http.StatusOK)
	if _, err := audio.WriteWAV(c.Writer, f, st.Size()); err != nil {
		log.Error().Err(err).Str("module", "bridge").Str("message", string(msg.ID)).Msg("stream recording")
	}
}

func (ctl *Controller) postStartRecording(c *gin.Context) {
	var req recordRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	cmd := command{Latitude: req.Latitude, Longitude: req.Longitude}
	err := ctl.startRecording(c.Request.Context(), c.GetString("client_token"), cmd.location(ctl.opts.DefaultLocation))
	switch {
	case errors.Is(err, errRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyRecording):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDeviceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"recording": ctl.engine.IsRecording()})
	}
}

func (ctl *Controller) postStopRecording(c *gin.Context) {
	ctl.engine.StopLocalRecording(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"recording": false})
}

// postPlay blocks until playback finished.
func (ctl *Controller) postPlay(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	msg, err := ctl.resolve(req.MessageID, req.FilePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	done := make(chan error, 1)
	ctl.engine.PlayFile(ctx, msg.FilePath, func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message_id": msg.ID, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message_id": msg.ID, "played": true})
	case <-ctx.Done():
	}
}

func (ctl *Controller) postBackground(c *gin.Context) {
	var req backgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	ctl.keepAlive.SetBackgroundMode(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
}
