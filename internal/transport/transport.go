// Package transport holds the external collaborators of the dispatch engine:
// the mail transports that accept a fully-formed message, and the identity
// provider that supplies the credential they need.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"RosterMail/internal/compose"
	"RosterMail/internal/models"
)

// Transport delivers one composed message. Implementations never retry on
// their own; retry is a deliberate re-invocation by the user.
type Transport interface {
	Send(ctx context.Context, p *compose.Payload) error
	Method() models.SendMethod
}

// TokenProvider supplies the transport credential. Reauthorize must be safe
// to call repeatedly.
type TokenProvider interface {
	HasValidCredential() bool
	Reauthorize(ctx context.Context) error
	// Invalidate marks the current credential as expired, typically after a
	// transport reported an auth failure.
	Invalidate()
}

// ErrReauthorizeCancelled means the user declined the interactive
// authorization flow. Callers abort the affected send without surfacing an
// error toast.
var ErrReauthorizeCancelled = errors.New("transport: authorization cancelled by user")

// AuthExpiredError is a transport failure caused by a stale or insufficient
// credential.
type AuthExpiredError struct {
	Msg string
}

func (e *AuthExpiredError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "la sesión ha expirado, autoriza el envío nuevamente"
}

// IsAuthExpired classifies a transport error as a credential problem, either
// by type or by the message patterns the upstream APIs are known to emit.
func IsAuthExpired(err error) bool {
	if err == nil {
		return false
	}
	var ae *AuthExpiredError
	if errors.As(err, &ae) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "expirado") ||
		strings.Contains(msg, "permisos") ||
		strings.Contains(msg, "401")
}

// Static is a TokenProvider for transports with baked-in credentials (plain
// SMTP): always valid until explicitly invalidated.
type Static struct {
	invalid bool
}

func (s *Static) HasValidCredential() bool          { return !s.invalid }
func (s *Static) Reauthorize(context.Context) error { s.invalid = false; return nil }
func (s *Static) Invalidate()                       { s.invalid = true }

func validatePayload(p *compose.Payload) error {
	if p == nil {
		return fmt.Errorf("transport: nil payload")
	}
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("transport: payload has no destination")
	}
	return nil
}
