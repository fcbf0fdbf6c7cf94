// Package token fetches session credentials from the token service.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// tokenPayload accepts both shapes the service has shipped:
// {token:"..."} and {token:{token:"..."}}. Anything else is a fetch
// failure, decoded explicitly rather than duck-typed.
type tokenPayload struct {
	Token json.RawMessage `json:"token"`
}

type nestedToken struct {
	Token string `json:"token"`
}

// Fetch POSTs {guid, room} and returns the bare token string.
func (c *Client) Fetch(ctx context.Context, self domain.PlayerID, zone domain.ZoneID) (string, error) {
	body, err := json.Marshal(struct {
		GUID domain.PlayerID `json:"guid"`
		Room string          `json:"room"`
	}{GUID: self, Room: string(zone)})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", core.ErrTokenFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTokenFetch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTokenFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", core.ErrTokenFetch, resp.StatusCode)
	}

	var payload tokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || len(payload.Token) == 0 {
		return "", fmt.Errorf("%w: bad body", core.ErrTokenFetch)
	}

	var bare string
	if err := json.Unmarshal(payload.Token, &bare); err == nil && bare != "" {
		return bare, nil
	}
	var nested nestedToken
	if err := json.Unmarshal(payload.Token, &nested); err == nil && nested.Token != "" {
		return nested.Token, nil
	}
	return "", fmt.Errorf("%w: missing token field", core.ErrTokenFetch)
}
