package pairing

import (
	"agenthub/internal/gateway"
	"agenthub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler mints pairing codes for out-of-band display. The redemption
// side lives on the gateway; only trusted console users may create codes.
type Handler struct {
	gateway *gateway.Gateway
}

// NewHandler creates a pairing handler
func NewHandler(g *gateway.Gateway) *Handler {
	return &Handler{gateway: g}
}

// CreateCode handles POST /pairing/codes
func (h *Handler) CreateCode(c *gin.Context) {
	code, err := h.gateway.NewPairingCode(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to create pairing code", err))
		return
	}
	httpx.OK(c, gin.H{"code": code})
}
