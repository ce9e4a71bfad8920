package token

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity and permission claims supplied by the issuer.
type Claims struct {
	SubjectID       string   `json:"subjectId"`
	Email           string   `json:"email,omitempty"`
	Role            string   `json:"role"`
	OrgID           string   `json:"orgId,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
	DenyPermissions []string `json:"denyPermissions,omitempty"`
	Scope           string   `json:"scope,omitempty"`
	ClientID        string   `json:"clientId,omitempty"`

	// Extra holds additional custom claims. Keys that collide with a
	// standard claim are ignored.
	Extra map[string]any `json:"-"`
}

// Payload is the full claim set of a signed token.
type Payload struct {
	Claims
	jwt.RegisteredClaims
}

var _ jwt.Claims = (*Payload)(nil)

// TokenID returns the jti claim.
func (p *Payload) TokenID() string {
	return p.ID
}

// IssuedAtTime returns the iat claim, or the zero time.
func (p *Payload) IssuedAtTime() time.Time {
	return numericTime(p.IssuedAt)
}

// ExpiresAtTime returns the exp claim, or the zero time.
func (p *Payload) ExpiresAtTime() time.Time {
	return numericTime(p.ExpiresAt)
}

// NotBeforeTime returns the nbf claim, or the zero time.
func (p *Payload) NotBeforeTime() time.Time {
	return numericTime(p.NotBefore)
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}

type payloadJSON Payload

// MarshalJSON flattens Extra next to the standard claims.
func (p Payload) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(payloadJSON(p))
	if err != nil || len(p.Extra) == 0 {
		return b, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if reservedClaims[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON collects unknown claims into Extra.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var plain payloadJSON
	if err := json.Unmarshal(b, &plain); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, raw := range all {
		if reservedClaims[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if plain.Extra == nil {
			plain.Extra = make(map[string]any)
		}
		plain.Extra[k] = v
	}

	*p = Payload(plain)
	return nil
}

var reservedClaims = map[string]bool{
	"subjectId":       true,
	"email":           true,
	"role":            true,
	"orgId":           true,
	"permissions":     true,
	"denyPermissions": true,
	"scope":           true,
	"clientId":        true,
	"iss":             true,
	"sub":             true,
	"aud":             true,
	"exp":             true,
	"nbf":             true,
	"iat":             true,
	"jti":             true,
}
