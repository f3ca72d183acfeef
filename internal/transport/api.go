package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"RosterMail/internal/compose"
	"RosterMail/internal/models"
)

// tokenSource yields the bearer credential for the raw-message API.
type tokenSource interface {
	Token() string
}

// API submits the raw message to a Gmail-style send endpoint as
// {"raw": base64url}. A 401 invalidates the credential and comes back as an
// AuthExpiredError so the engine can route it to the reauthorization flow.
type API struct {
	Base   string
	Tokens tokenSource
	Client *http.Client
	Log    *zap.Logger
}

func NewAPI(base string, tokens tokenSource, log *zap.Logger) *API {
	return &API{
		Base:   base,
		Tokens: tokens,
		Client: &http.Client{Timeout: 30 * time.Second},
		Log:    log,
	}
}

func (a *API) Method() models.SendMethod { return models.MethodAPI }

func (a *API) Send(ctx context.Context, p *compose.Payload) error {
	if err := validatePayload(p); err != nil {
		return err
	}
	token := a.Tokens.Token()
	if token == "" {
		return &AuthExpiredError{Msg: "no hay token de acceso, autoriza el envío primero"}
	}

	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(p.Raw)
	body, err := json.Marshal(map[string]string{"raw": encoded})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Base+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := a.Tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		return &AuthExpiredError{Msg: "el token de envío ha expirado o no tiene permisos"}
	}
	if resp.StatusCode >= 300 {
		msg := readAPIError(resp.Body)
		a.Log.Warn("mail api rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("to", p.To),
		)
		return fmt.Errorf("mail api error (%d): %s", resp.StatusCode, msg)
	}
	return nil
}

func readAPIError(r io.Reader) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil || payload.Error.Message == "" {
		return "error desconocido"
	}
	return payload.Error.Message
}
