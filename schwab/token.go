package schwab

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrNoToken is returned when the token file holds no access token
var ErrNoToken = errors.New("no schwab access token, run authentication first")

// tokenFile reads access tokens written by the OAuth login flow.
// Both the wrapped {"token": {...}} layout and a bare token object are accepted.
type tokenFile struct {
	path string
}

type oauthToken struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"`
}

// AccessToken returns the current access token
func (t *tokenFile) AccessToken() (string, error) {
	if t.path == "" {
		return "", ErrNoToken
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}

	var wrapped struct {
		Token *oauthToken `json:"token"`
		oauthToken
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return "", fmt.Errorf("parsing token file: %w", err)
	}

	token := wrapped.oauthToken
	if wrapped.Token != nil {
		token = *wrapped.Token
	}
	if token.AccessToken == "" {
		return "", ErrNoToken
	}
	return token.AccessToken, nil
}
