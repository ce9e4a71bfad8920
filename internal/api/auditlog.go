package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// EventPage is one page of an audit query.
type EventPage struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *handlers) queryAudit(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	f = f.Normalize()

	events, total, err := h.Audit.Query(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, audit.ErrQueryNotSupported) {
			abortWithError(c, http.StatusNotImplemented, err.Error())
			return
		}
		h.Logger.WithContext(c.Request.Context()).Error("audit query failed", observability.Error(err))
		abortWithError(c, http.StatusInternalServerError, "audit query failed")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	c.JSON(http.StatusOK, EventPage{
		Events: events,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// parseFilter reads type, severity, minSeverity, subject, role, from, to,
// limit and offset. type and severity may repeat or hold comma lists.
func parseFilter(c *gin.Context) (audit.Filter, error) {
	f := audit.Filter{
		Subject: c.Query("subject"),
		Role:    c.Query("role"),
	}

	for _, v := range listParam(c, "type") {
		t, err := audit.ParseEventType(v)
		if err != nil {
			return f, err
		}
		f.Types = append(f.Types, t)
	}
	for _, v := range listParam(c, "severity") {
		s, err := audit.ParseSeverity(v)
		if err != nil {
			return f, err
		}
		f.Severities = append(f.Severities, s)
	}
	if v := c.Query("minSeverity"); v != "" {
		s, err := audit.ParseSeverity(v)
		if err != nil {
			return f, err
		}
		f.MinSeverity = s
	}

	var err error
	if f.From, err = timeParam(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = timeParam(c, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(c, "offset"); err != nil {
		return f, err
	}
	if f.Offset < 0 {
		return f, errors.New("offset must not be negative")
	}
	return f, nil
}

func listParam(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func timeParam(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected RFC 3339 time: %w", name, err)
	}
	return t, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected an integer", name)
	}
	return n, nil
}
