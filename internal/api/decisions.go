package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
)

// DecisionSubject is the subject part of a decision request.
type DecisionSubject struct {
	ID    string   `json:"id"`
	Role  string   `json:"role"`
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// DecisionRequest asks whether a subject may perform method on path.
type DecisionRequest struct {
	Subject *DecisionSubject `json:"subject" binding:"required"`
	Method  string           `json:"method" binding:"required"`
	Path    string           `json:"path" binding:"required"`
}

func (h *handlers) decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	subject := &rbac.Subject{
		ID:    req.Subject.ID,
		Role:  req.Subject.Role,
		Allow: req.Subject.Allow,
		Deny:  req.Subject.Deny,
	}
	c.JSON(http.StatusOK, h.Engine.Explain(subject, req.Method, req.Path))
}
