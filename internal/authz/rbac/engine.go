package rbac

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avauthz/internal/authz/pattern"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Decision reasons.
const (
	ReasonAdminBypass       = "admin bypass"
	ReasonMissingRole       = "missing role"
	ReasonLacksPermission   = "lacks required permission"
	ReasonExplicitlyDenied  = "explicitly denied"
	ReasonPermissionGranted = "permission granted"
	ReasonRoleDefaultAllow  = "allowed by role default"
	ReasonRoleDefaultDeny   = "denied by role default"
	ReasonUnknownRole       = "unknown role"
	ReasonDefaultPolicy     = "default policy"
)

// Stages that resolve a decision.
const (
	StageAdmin       = "admin"
	StageExplicit    = "explicit"
	StageRoleDefault = "role_default"
	StageDefault     = "default"
)

// Decision is the detailed outcome of a policy evaluation.
type Decision struct {
	// Allowed indicates if the action is allowed.
	Allowed bool `json:"allowed"`

	// Reason explains the outcome.
	Reason string `json:"reason"`

	// RequiredAction is the METHOD:PATH descriptor that was evaluated.
	RequiredAction string `json:"requiredAction"`

	// EvaluatedPermissions lists the entries inspected to reach the outcome.
	EvaluatedPermissions []string `json:"evaluatedPermissions"`

	// Policy is the stage that resolved the decision.
	Policy string `json:"policy"`
}

// Engine evaluates subjects against requested actions.
type Engine interface {
	// Decide reports whether subject may perform method on path.
	Decide(subject *Subject, method, path string) bool

	// Explain evaluates like Decide and returns the full decision.
	Explain(subject *Subject, method, path string) *Decision

	// UpdateConfig atomically replaces the configuration.
	UpdateConfig(cfg *Config) error

	// Config returns the active configuration.
	Config() *Config
}

// engine implements the Engine interface.
type engine struct {
	config   atomic.Pointer[Config]
	patterns *pattern.Cache
	logger   observability.Logger
	metrics  *Metrics
}

var _ Engine = (*engine)(nil)

// EngineOption is a functional option for the engine.
type EngineOption func(*engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics.
func WithEngineMetrics(metrics *Metrics) EngineOption {
	return func(e *engine) {
		e.metrics = metrics
	}
}

// WithPatternCache shares a compiled pattern cache with other components.
func WithPatternCache(cache *pattern.Cache) EngineOption {
	return func(e *engine) {
		e.patterns = cache
	}
}

// NewEngine creates a new policy engine. A nil config selects DefaultConfig.
func NewEngine(config *Config, opts ...EngineOption) (Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &engine{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.patterns == nil {
		e.patterns = pattern.NewCache(0)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics("avauthz")
	}

	e.config.Store(config)
	return e, nil
}

// Decide reports whether subject may perform method on path.
func (e *engine) Decide(subject *Subject, method, path string) bool {
	return e.Explain(subject, method, path).Allowed
}

// Explain evaluates the subject in a fixed order: admin bypass, explicit
// allow, explicit deny, role defaults, default policy.
func (e *engine) Explain(subject *Subject, method, path string) *Decision {
	start := time.Now()
	cfg := e.config.Load()

	decision := e.evaluate(cfg, subject, method, path)

	result := "deny"
	if decision.Allowed {
		result = "allow"
	}
	e.metrics.RecordEvaluation(result, decision.Reason, time.Since(start))

	subjectID, role := "", ""
	if subject != nil {
		subjectID, role = subject.ID, subject.Role
	}
	e.logger.Debug("policy decision",
		observability.String("subject_id", subjectID),
		observability.String("role", role),
		observability.String("action", decision.RequiredAction),
		observability.Bool("allowed", decision.Allowed),
		observability.String("reason", decision.Reason),
		observability.String("policy", decision.Policy),
	)

	return decision
}

func (e *engine) evaluate(cfg *Config, subject *Subject, method, path string) *Decision {
	requested := Action(method, path)
	d := &Decision{RequiredAction: requested}

	if subject == nil || strings.TrimSpace(subject.Role) == "" {
		return d.deny(ReasonMissingRole, StageDefault)
	}
	if subject.Role == cfg.AdminRole {
		return d.allow(ReasonAdminBypass, StageAdmin)
	}

	if !subject.HasExplicitPermissions() {
		return e.roleDefault(cfg, d, subject.Role, method, path)
	}

	matched := false
	if len(subject.Allow) > 0 {
		for _, entry := range subject.Allow {
			d.EvaluatedPermissions = append(d.EvaluatedPermissions, entry)
			if entry == pattern.Wildcard || e.patterns.Match(entry, requested) {
				matched = true
				break
			}
		}
		if !matched {
			return d.deny(ReasonLacksPermission, StageExplicit)
		}
	}

	for _, entry := range subject.Deny {
		d.EvaluatedPermissions = append(d.EvaluatedPermissions, "!"+entry)
		if e.patterns.Match(entry, requested) {
			return d.deny(ReasonExplicitlyDenied, StageExplicit)
		}
	}

	if matched {
		return d.allow(ReasonPermissionGranted, StageExplicit)
	}

	if cfg.DefaultPolicy == EffectAllow {
		return d.allow(ReasonDefaultPolicy, StageDefault)
	}
	return d.deny(ReasonDefaultPolicy, StageDefault)
}

func (e *engine) roleDefault(cfg *Config, d *Decision, role, method, path string) *Decision {
	d.EvaluatedPermissions = []string{"role:" + role}

	switch role {
	case RoleViewer:
		if containsMethod(cfg.ViewerMethods, method) {
			return d.allow(ReasonRoleDefaultAllow, StageRoleDefault)
		}
		return d.deny(ReasonRoleDefaultDeny, StageRoleDefault)

	case RoleDeveloper:
		dev := cfg.Developer
		switch {
		case containsMethod(dev.Methods, method):
			return d.allow(ReasonRoleDefaultAllow, StageRoleDefault)
		case method == "PUT" && hasSegment(path, dev.DataSegment):
			return d.allow(ReasonRoleDefaultAllow, StageRoleDefault)
		case method == "DELETE" && hasSegment(path, dev.FaultSegment):
			return d.allow(ReasonRoleDefaultAllow, StageRoleDefault)
		}
		return d.deny(ReasonRoleDefaultDeny, StageRoleDefault)
	}

	return d.deny(ReasonUnknownRole, StageRoleDefault)
}

// UpdateConfig atomically replaces the configuration.
func (e *engine) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config.Store(cfg)
	e.logger.Info("policy configuration updated",
		observability.String("default_policy", string(cfg.DefaultPolicy)),
	)
	return nil
}

// Config returns the active configuration.
func (e *engine) Config() *Config {
	return e.config.Load()
}

func (d *Decision) allow(reason, stage string) *Decision {
	d.Allowed = true
	d.Reason = reason
	d.Policy = stage
	return d
}

func (d *Decision) deny(reason, stage string) *Decision {
	d.Allowed = false
	d.Reason = reason
	d.Policy = stage
	return d
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

// hasSegment reports whether any "/"-separated segment of path equals segment.
func hasSegment(path, segment string) bool {
	if segment == "" {
		return false
	}
	for _, s := range strings.Split(path, "/") {
		if s == segment {
			return true
		}
	}
	return false
}
