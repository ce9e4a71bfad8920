package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/authz/pattern"
	"github.com/vyrodovalexey/avauthz/internal/middleware"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// IssueRequest is the body of POST /v1/tokens.
type IssueRequest struct {
	SubjectID       string         `json:"subjectId"`
	Email           string         `json:"email,omitempty"`
	Role            string         `json:"role"`
	OrgID           string         `json:"orgId,omitempty"`
	Permissions     []string       `json:"permissions,omitempty"`
	DenyPermissions []string       `json:"denyPermissions,omitempty"`
	Scope           string         `json:"scope,omitempty"`
	ClientID        string         `json:"clientId,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`

	token.IssueOptions
}

// RefreshRequest is the body of POST /v1/tokens/refresh.
type RefreshRequest struct {
	Token     string `json:"token" binding:"required"`
	ExpiresIn string `json:"expiresIn,omitempty"`
}

// VerifyRequest is the body of POST /v1/tokens/verify.
type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *handlers) issueToken(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	claims := token.Claims{
		SubjectID:       req.SubjectID,
		Email:           req.Email,
		Role:            req.Role,
		OrgID:           req.OrgID,
		Permissions:     req.Permissions,
		DenyPermissions: req.DenyPermissions,
		Scope:           req.Scope,
		ClientID:        req.ClientID,
		Extra:           req.Extra,
	}

	if reason := h.limitToCaller(c, &claims); reason != "" {
		by := actor(c)
		h.audit(c, audit.NewEvent(audit.EventAccessDenied, audit.SeverityHigh, "token issue denied").
			WithSubject(by.SubjectID, by.Role).
			WithAction(c.Request.Method, c.Request.URL.Path, "denied").
			With("requestedRole", claims.Role).
			With("reason", reason).
			WithTags("token"))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "reason": reason})
		return
	}

	// Without explicit sets the token carries the role's stored rules.
	if len(claims.Permissions) == 0 && len(claims.DenyPermissions) == 0 && h.Resolver != nil {
		set, err := h.Resolver.Resolve(ctx, claims.Role)
		if err != nil {
			h.Logger.WithContext(ctx).Warn("issuing token without stored permissions",
				observability.String("role", claims.Role),
				observability.Error(err),
			)
		} else {
			claims.Permissions, claims.DenyPermissions = set.Allow, set.Deny
		}
	}

	issued, err := h.Tokens.Issue(ctx, claims, req.IssueOptions)
	if err != nil {
		if errors.Is(err, token.ErrMissingClaim) || errors.Is(err, token.ErrInvalidDuration) {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.Logger.WithContext(ctx).Error("token issue failed", observability.Error(err))
		abortWithError(c, http.StatusInternalServerError, "token issue failed")
		return
	}

	by := actor(c)
	h.audit(c, audit.NewEvent(audit.EventTokenIssued, audit.SeverityLow, "token issued").
		WithSubject(issued.Payload.SubjectID, issued.Payload.Role).
		With("jti", issued.Payload.TokenID()).
		With("issuedBy", by.SubjectID).
		With("expiresAt", issued.ExpiresAt).
		WithTags("token"))

	c.JSON(http.StatusCreated, issued)
}

// Reasons a token request is refused.
const (
	reasonForeignRole      = "cannot issue tokens for another role"
	reasonExceedsCaller    = "requested permissions exceed the caller's"
	reasonUnverifiedCaller = "caller not verified"
)

// limitToCaller keeps a caller from issuing more than it holds. The admin
// role issues anything. Everyone else may only issue tokens of its own role,
// with allow entries taken from its own allow set; its deny set is always
// carried over. It returns the refusal reason, or "" when claims may be
// signed.
func (h *handlers) limitToCaller(c *gin.Context, claims *token.Claims) string {
	caller, ok := middleware.PayloadFromContext(c.Request.Context())
	if !ok {
		return reasonUnverifiedCaller
	}
	if caller.Role == h.Engine.Config().AdminRole {
		return ""
	}
	if claims.Role != caller.Role {
		return reasonForeignRole
	}

	if len(claims.Permissions) == 0 {
		claims.Permissions = slices.Clone(caller.Permissions)
	} else {
		for _, p := range claims.Permissions {
			if !grants(caller.Permissions, p) {
				return reasonExceedsCaller
			}
		}
	}
	claims.DenyPermissions = append(slices.Clone(caller.DenyPermissions), claims.DenyPermissions...)
	return ""
}

// grants reports whether an allow set covers the entry. A requested pattern
// is only covered by an identical entry or the bare wildcard.
func grants(allow []string, entry string) bool {
	for _, a := range allow {
		if a == pattern.Wildcard || a == entry {
			return true
		}
		if strings.Contains(entry, pattern.Wildcard) {
			continue
		}
		if m, err := pattern.Compile(a); err == nil && m.Test(entry) {
			return true
		}
	}
	return false
}

func (h *handlers) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	issued, err := h.Tokens.Refresh(ctx, req.Token, token.IssueOptions{ExpiresIn: req.ExpiresIn})
	if err != nil {
		var verr *token.ValidationError
		switch {
		case errors.As(err, &verr):
			h.audit(c, audit.NewEvent(audit.EventTokenVerificationFailed, audit.SeverityMedium, "refresh rejected").
				WithAction("refresh", c.Request.URL.Path, "rejected").
				With("kind", string(verr.Kind)).
				WithTags("token"))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": verr.Kind.Err().Error(),
				"kind":  verr.Kind,
			})
		case errors.Is(err, token.ErrInvalidDuration):
			abortWithError(c, http.StatusBadRequest, err.Error())
		default:
			h.Logger.WithContext(ctx).Error("token refresh failed", observability.Error(err))
			abortWithError(c, http.StatusInternalServerError, "token refresh failed")
		}
		return
	}

	h.audit(c, audit.NewEvent(audit.EventTokenRefreshed, audit.SeverityLow, "token refreshed").
		WithSubject(issued.Payload.SubjectID, issued.Payload.Role).
		With("jti", issued.Payload.TokenID()).
		With("expiresAt", issued.ExpiresAt).
		WithTags("token"))

	c.JSON(http.StatusOK, issued)
}

// verifyToken introspects a token. The outcome is always reported in the
// body; raw verification errors are never exposed.
func (h *handlers) verifyToken(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.Tokens.Verify(c.Request.Context(), req.Token))
}

func (h *handlers) audit(c *gin.Context, e audit.Event) {
	if h.Audit != nil {
		h.Audit.Log(c.Request.Context(), e)
	}
}
