package link

import "github.com/google/uuid"

// securityTokens issues opaque, comparable-by-value correlation tokens for
// in-flight security requests, in place of comparing pointer identity:
// two tokens are equal only if one was copied from the other, and a token
// carries no meaning beyond that comparison.
type securityTokens struct{}

func newSecurityTokens() *securityTokens { return &securityTokens{} }

func (s *securityTokens) issue() SecurityToken {
	return SecurityToken(uuid.New())
}
