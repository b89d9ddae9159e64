package policy

import (
	"context"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arc-self/alchemist-core/alerr"
)

// Context is the subject_context spec.md §4.7 evaluates a policy set
// against: the caller's claims plus whatever request-scoped variables a
// rule's VariableEquals condition may reference.
type Context struct {
	Claims    map[string]string
	Roles     []string
	Variables map[string]string
}

// HasClaim reports whether claim is present (and non-empty).
func (c Context) HasClaim(claim string) bool {
	v, ok := c.Claims[claim]
	return ok && v != ""
}

// InRole reports whether role is one of the context's roles.
func (c Context) InRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// VariableEquals reports whether variable equals value.
func (c Context) VariableEquals(variable, value string) bool {
	v, ok := c.Variables[variable]
	return ok && v == value
}

// Verifier extracts a Context from a bearer token, validating its
// signature against a JWKS set (mirroring the teacher's JWT-plus-JWKS
// verification step, minus the downstream gRPC IAM call this control
// plane's policy engine replaces with local rule evaluation).
type Verifier struct {
	jwks keyfunc.Keyfunc
}

// NewVerifier builds a Verifier backed by the JWKS served at jwksURL.
func NewVerifier(ctx context.Context, jwksURL string) (*Verifier, error) {
	jwks, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "policy.NewVerifier", err)
	}
	return &Verifier{jwks: jwks}, nil
}

// Verify validates tokenString and extracts its claims into a Context.
// Roles are read from a "roles" claim holding a list of strings; any other
// string-valued claim becomes a member of Claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (Context, error) {
	token, err := jwt.Parse(tokenString, v.jwks.KeyfuncCtx(ctx))
	if err != nil || !token.Valid {
		return Context{}, alerr.Wrap(alerr.KindPolicyDeny, "policy.Verify", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Context{}, alerr.New(alerr.KindPolicyDeny, "policy.Verify: unreadable claims")
	}

	out := Context{Claims: make(map[string]string), Variables: make(map[string]string)}
	for k, raw := range mapClaims {
		switch val := raw.(type) {
		case string:
			out.Claims[k] = val
		case []interface{}:
			if k == "roles" {
				for _, r := range val {
					if s, ok := r.(string); ok {
						out.Roles = append(out.Roles, s)
					}
				}
			}
		}
	}
	return out, nil
}
