package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

type OIDCAuthenticator struct {
	config      *oauth2.Config
	issuer      string
	userinfoURL string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}

	issuer = strings.TrimRight(issuer, "/")

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "email"},
	}

	return &OIDCAuthenticator{
		config:      config,
		issuer:      issuer,
		userinfoURL: fmt.Sprintf("%s/userinfo", issuer),
	}, nil
}

// ValidateToken presents the bearer token to the issuer's userinfo endpoint
// and returns the claims the issuer reports for it. Any issuer error, network
// failure, or non-2xx status rejects the token.
func (a *OIDCAuthenticator) ValidateToken(ctx context.Context, token string) (map[string]interface{}, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("token is empty")
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("issuer rejected token: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims := map[string]interface{}{}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("malformed userinfo response: %w", err)
	}
	if _, ok := claims["sub"]; !ok {
		return nil, fmt.Errorf("userinfo response missing subject")
	}
	claims["iss"] = a.issuer
	return claims, nil
}
