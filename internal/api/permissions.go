package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/authz/store"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// RoleRules lists the stored rules of a role with the set they resolve to.
type RoleRules struct {
	Role      string                 `json:"role"`
	Rules     []store.PermissionRule `json:"rules"`
	Effective rbac.PermissionSet     `json:"effective"`
}

func (h *handlers) listPermissions(c *gin.Context) {
	role := c.Param("role")

	rules, err := h.Admin.List(c.Request.Context(), role)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if rules == nil {
		rules = []store.PermissionRule{}
	}
	c.JSON(http.StatusOK, RoleRules{
		Role:      role,
		Rules:     rules,
		Effective: store.PermissionSet(rules),
	})
}

func (h *handlers) upsertPermission(c *gin.Context) {
	var rule store.PermissionRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	saved, created, err := h.Admin.Upsert(c.Request.Context(), actor(c), rule)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, saved)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *handlers) deletePermission(c *gin.Context) {
	removed, err := h.Admin.Delete(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, removed)
}

// storeError maps a store failure onto a status code.
func (h *handlers) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidRule):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		c.Header("Retry-After", "5")
		abortWithError(c, http.StatusServiceUnavailable, store.ErrUnavailable.Error())
	default:
		h.Logger.WithContext(c.Request.Context()).Error("permission store failure", observability.Error(err))
		abortWithError(c, http.StatusInternalServerError, "permission store failure")
	}
}
