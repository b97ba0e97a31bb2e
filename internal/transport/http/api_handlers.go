package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/core"
)

// APIHandlers provides HTTP handlers for the channel directory and the operator API.
type APIHandlers struct {
	hub core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelResponse represents a public room in API responses.
type ChannelResponse struct {
	Name         string `json:"name"`
	Official     bool   `json:"official"`
	Creator      string `json:"creator,omitempty"`
	Users        int    `json:"users"`
	MessageCount int    `json:"message_count"`
	LastActivity string `json:"last_activity"`
}

// BanResponse represents an active ban in API responses.
type BanResponse struct {
	Identity  string `json:"identity"`
	Pseudo    string `json:"pseudo,omitempty"`
	Permanent bool   `json:"permanent"`
	Until     string `json:"until,omitempty"`
}

// UnbanResponse reports how many bans were lifted.
type UnbanResponse struct {
	Removed int `json:"removed"`
}

// Channels lists public rooms.
// GET /api/channels
func (h *APIHandlers) Channels(c *gin.Context) {
	channels, err := h.hub.Channels(c.Request.Context())
	if err != nil {
		h.unavailable(c, err, "list channels")
		return
	}

	out := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelResponse{
			Name:         ch.Name,
			Official:     ch.Official,
			Creator:      ch.CreatorID,
			Users:        ch.Occupants,
			MessageCount: ch.MessageCount,
			LastActivity: ch.LastActivity.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

// Bans lists active bans.
// GET /api/admin/bans
func (h *APIHandlers) Bans(c *gin.Context) {
	bans, err := h.hub.Bans(c.Request.Context())
	if err != nil {
		h.unavailable(c, err, "list bans")
		return
	}

	out := make([]BanResponse, 0, len(bans))
	for _, b := range bans {
		resp := BanResponse{Identity: b.Identity, Pseudo: b.Pseudo, Permanent: b.Permanent()}
		if !b.Permanent() {
			resp.Until = b.Until.UTC().Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// Unban lifts bans matching an identity or a remembered pseudo.
// DELETE /api/admin/bans/:identity
func (h *APIHandlers) Unban(c *gin.Context) {
	query := c.Param("identity")
	removed, err := h.hub.Unban(c.Request.Context(), query)
	if err != nil {
		h.unavailable(c, err, "unban")
		return
	}
	if removed == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no matching ban"})
		return
	}

	h.log.Info().Str("operator", c.GetString(ContextKeyOperator)).Str("query", query).Int("removed", removed).Msg("bans lifted")
	c.JSON(http.StatusOK, UnbanResponse{Removed: removed})
}

// DeleteRoom removes a non-official public room and moves its occupants to the default room.
// DELETE /api/admin/rooms/:name
func (h *APIHandlers) DeleteRoom(c *gin.Context) {
	name := c.Param("name")
	err := h.hub.DeleteRoom(c.Request.Context(), name)
	switch {
	case err == nil:
		h.log.Info().Str("operator", c.GetString(ContextKeyOperator)).Str("room", name).Msg("room deleted")
		c.Status(http.StatusNoContent)
	case errors.Is(err, core.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
	case errors.Is(err, core.ErrOfficialRoom):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "official rooms cannot be deleted"})
	default:
		h.unavailable(c, err, "delete room")
	}
}

func (h *APIHandlers) unavailable(c *gin.Context, err error, what string) {
	if errors.Is(err, core.ErrHubStopped) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server shutting down"})
		return
	}
	h.log.Error().Err(err).Msg(what)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
