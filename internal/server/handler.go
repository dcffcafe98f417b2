package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/llonebot/llbot-cli/internal/domain"
)

// Source supplies the launcher state the server reports.
type Source interface {
	Status() domain.Status
	QRCodeImage() []byte
}

type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": h.source.Status()})
}

// QRCode serves the latest login QR image while login is pending.
func (h *Handler) QRCode(c *gin.Context) {
	image := h.source.QRCodeImage()
	if len(image) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no qrcode available"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", image)
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", h.Ping)
	r.GET("/status", h.Status)
	r.GET("/qrcode.png", h.QRCode)
}
