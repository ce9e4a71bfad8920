package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

const jwksCacheControl = "public, max-age=300"

// jwks publishes the verification keys so relying parties can check tokens
// without calling back.
func (h *handlers) jwks(c *gin.Context) {
	set, err := keys.JWKS(c.Request.Context(), h.Keys, h.JWKSEnvironments...)
	if err != nil {
		h.Logger.WithContext(c.Request.Context()).Error("failed to build key set", observability.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "signing keys unavailable")
		return
	}
	c.Header("Cache-Control", jwksCacheControl)
	c.JSON(http.StatusOK, set)
}
