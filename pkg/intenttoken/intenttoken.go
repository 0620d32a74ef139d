// Package intenttoken reads the payload of a Passage intent token.
// The token is an opaque bearer credential; the client never verifies its
// signature, it only decodes the claims it needs (session id, permitted
// resources, optional return URL).
package intenttoken

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptyToken is returned when the token string is empty.
var ErrEmptyToken = errors.New("intent token is empty")

// Claims is the subset of the token payload the client depends on.
type Claims struct {
	// SessionID identifies the connection session the token authorizes.
	SessionID string
	// Resources lists permitted resource grants, e.g. "trip-read".
	Resources []string
	// RedirectURL is the optional return URL for hosted-flow handoff.
	RedirectURL string
}

// Decode extracts Claims from token without verifying its signature.
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	parser := jwt.NewParser()
	raw := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, raw); err != nil {
		return nil, fmt.Errorf("decode intent token: %w", err)
	}

	c := &Claims{}
	if v, ok := raw["sessionId"].(string); ok {
		c.SessionID = v
	}
	if v, ok := raw["redirectUrl"].(string); ok {
		c.RedirectURL = v
	}
	if vs, ok := raw["resources"].([]any); ok {
		for _, v := range vs {
			if s, ok := v.(string); ok {
				c.Resources = append(c.Resources, s)
			}
		}
	}
	return c, nil
}

// Permits reports whether the decoded token grants the exact resource string
// (name plus access suffix, e.g. "trip-read").
func (c *Claims) Permits(resource string) bool {
	for _, r := range c.Resources {
		if r == resource {
			return true
		}
	}
	return false
}
