// Package rbac implements the role-based policy engine.
//
// A request is described by a Subject (role plus optional allow and deny
// descriptor lists) and a METHOD:PATH action. Evaluation order:
//
//  1. The admin role is allowed without further checks.
//  2. A non-empty allow list must contain "*" or an entry matching the action.
//  3. Any matching deny entry rejects the action, even when "*" is allowed.
//  4. Subjects without explicit lists fall back to built-in role defaults.
//  5. Anything left unresolved takes the configured default policy (deny).
//
// Usage:
//
//	engine, err := rbac.NewEngine(rbac.DefaultConfig(),
//	    rbac.WithEngineLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	decision := engine.Explain(&rbac.Subject{Role: rbac.RoleViewer}, "GET", "/v1/App")
package rbac
