package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"voc-dashboard/internal/domain"
)

const tokenPath = "/oidc/v1/token"

// AuthClient obtains access tokens from the platform's identity endpoint
// using the OAuth client-credentials flow.
type AuthClient struct {
	client       *Client
	clientID     string
	clientSecret string

	// lifetimeHint is used when the token response carries neither
	// expires_in nor a parseable exp claim.
	lifetimeHint time.Duration
}

var _ domain.TokenSource = (*AuthClient)(nil)

// NewAuthClient creates an AuthClient for the given client credentials.
func NewAuthClient(client *Client, clientID, clientSecret string, lifetimeHint time.Duration) *AuthClient {
	return &AuthClient{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
		lifetimeHint: lifetimeHint,
	}
}

// FetchCredential requests a fresh access token. The expiry instant comes
// from expires_in when present, otherwise from the token's exp claim,
// otherwise from the configured lifetime hint.
func (a *AuthClient) FetchCredential(ctx context.Context) (domain.Credential, error) {
	if a.clientID == "" || a.clientSecret == "" {
		return domain.Credential{}, domain.ErrConfig("platform client credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "all-apis")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.client.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Credential{}, domain.ErrTransport("create token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.clientID, a.clientSecret)

	resp, err := a.client.http.Do(req)
	if err != nil {
		return domain.Credential{}, domain.ErrTransport("token request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusBadRequest {
			return domain.Credential{}, domain.ErrAuth("identity endpoint rejected client credentials (%d): %s", resp.StatusCode, msg)
		}
		return domain.Credential{}, domain.ErrTransport("identity endpoint error (%d): %s", resp.StatusCode, msg)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := unmarshalBody(resp.Body, &body); err != nil {
		return domain.Credential{}, err
	}
	if body.AccessToken == "" {
		return domain.Credential{}, domain.ErrAuth("identity endpoint returned no access token")
	}

	now := time.Now()
	cred := domain.Credential{AccessToken: body.AccessToken}
	switch {
	case body.ExpiresIn > 0:
		cred.Expiry = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	default:
		cred.Expiry = expiryFromClaims(body.AccessToken, now, a.lifetimeHint)
	}
	return cred, nil
}

// expiryFromClaims extracts the exp claim from a JWT access token without
// verifying its signature. The platform signed it, we only need the expiry.
// Falls back to now+hint for opaque tokens.
func expiryFromClaims(token string, now time.Time, hint time.Duration) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(hint)
}
