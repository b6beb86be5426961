package amo

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authorize attaches a freshly signed request token. The service rejects
// reused or long-lived tokens, so every request gets its own.
func (c *Client) authorize(req *http.Request) error {
	token, err := c.authToken(time.Now())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "JWT "+token)
	return nil
}

func (c *Client) authToken(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": c.apiKey,
		"jti": nonce(),
		"iat": now.Unix(),
		"exp": now.Add(c.jwtLifetime).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign auth token: %w", err)
	}
	return signed, nil
}

func nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
