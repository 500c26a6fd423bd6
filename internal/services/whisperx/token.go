package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taunote/internal/services"
)

// WhoAmIEndpoint is the Hugging Face account lookup used to validate tokens.
const WhoAmIEndpoint = "https://huggingface.co/api/whoami-v2"

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// TokenInfo describes the account behind a valid Hugging Face token.
type TokenInfo struct {
	Account string
}

// TokenValidator checks a Hugging Face token.
type TokenValidator struct {
	Endpoint string
	Client   *http.Client
}

// ValidateToken checks token against the public whoami endpoint.
func ValidateToken(ctx context.Context, token string) (TokenInfo, error) {
	return TokenValidator{}.Validate(ctx, token)
}

// Validate returns ErrConfiguration when Hugging Face rejects the token and
// ErrTransient when it cannot be reached, so callers can downgrade the
// latter to a warning.
func (v TokenValidator) Validate(ctx context.Context, token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenInfo{}, services.Wrap(services.ErrConfiguration, "whisperx", "token", "Empty Hugging Face token", nil)
	}
	endpoint := v.Endpoint
	if endpoint == "" {
		endpoint = WhoAmIEndpoint
	}
	client := v.Client
	if client == nil {
		client = defaultHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TokenInfo{}, services.Wrap(services.ErrTransient, "whisperx", "token", "Failed to build validation request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return TokenInfo{}, services.Wrap(services.ErrTransient, "whisperx", "token", "Failed to contact Hugging Face", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return TokenInfo{}, services.Wrap(services.ErrTransient, "whisperx", "token", "Failed to parse Hugging Face response", err)
		}
		account := strings.TrimSpace(payload.Name)
		if account == "" {
			account = "huggingface"
		}
		return TokenInfo{Account: account}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return TokenInfo{}, services.Wrap(services.ErrConfiguration, "whisperx", "token", fmt.Sprintf("Hugging Face rejected token (%s)", resp.Status), nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return TokenInfo{}, services.Wrap(services.ErrTransient, "whisperx", "token", fmt.Sprintf("Unexpected Hugging Face response: %s", msg), nil)
	}
}
