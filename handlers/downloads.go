package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/paygate/config"
	"github.com/yourusername/paygate/ledger"
	"github.com/yourusername/paygate/models"
	"github.com/yourusername/paygate/tokens"
)

type DownloadHandler struct {
	store  *ledger.Store
	config *config.Config
	issuer *tokens.Issuer
}

func NewDownloadHandler(store *ledger.Store, cfg *config.Config, issuer *tokens.Issuer) *DownloadHandler {
	return &DownloadHandler{
		store:  store,
		config: cfg,
		issuer: issuer,
	}
}

// Redeem validates a download token and streams the packaged artifact. Every
// rejection carries its specific reason code; nothing is served on failure.
func (h *DownloadHandler) Redeem(c *gin.Context) {
	claims, err := h.issuer.Redeem(c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTokenExpired):
			c.JSON(http.StatusForbidden, gin.H{"error": "Token has expired", "code": "token_expired"})
		case errors.Is(err, ledger.ErrTokenMaxUses):
			c.JSON(http.StatusForbidden, gin.H{"error": "Token has no uses left", "code": "token_max_uses_exceeded"})
		case errors.Is(err, tokens.ErrInvalidToken):
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token", "code": "invalid_token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem token"})
		}
		return
	}

	path := h.config.ArtifactPath(claims.ProductID)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found", "code": "artifact_missing"})
		return
	}

	event := &models.DownloadEvent{
		TokenID:    claims.ID,
		OrderID:    claims.OrderID,
		ProductID:  claims.ProductID,
		RemoteAddr: c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	if err := h.store.AppendDownload(event); err != nil {
		log.Printf("failed to record download event for order %s: %v", claims.OrderID, err)
	}

	c.FileAttachment(path, claims.ProductID+".zip")
}

// BlockArtifacts refuses direct access to artifact paths. The only way to a
// file is through a valid download token.
func (h *DownloadHandler) BlockArtifacts(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "Direct artifact access is forbidden", "code": "forbidden"})
}
