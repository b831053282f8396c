package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/taskflow/internal/domain"
	jwtpkg "github.com/splax/taskflow/pkg/jwt"
)

// IdentityProvider resolves a third-party authorization code to a profile.
// The rest of the service only consumes the resulting (name, email).
type IdentityProvider interface {
	AuthURL(state string) string
	ResolveIdentity(ctx context.Context, code string) (name, email string, err error)
}

// ErrProviderDisabled signals that no identity provider is configured.
var ErrProviderDisabled = errors.New("third-party sign-in not configured")

const stateTTL = 10 * time.Minute

// stateSubject marks state nonces so access tokens cannot stand in for them.
const stateSubject = "oauth-state"

// ProviderStartURL mints a signed state nonce and returns the provider's
// authorization URL.
func (s Service) ProviderStartURL() (string, error) {
	if s.provider == nil {
		return "", ErrProviderDisabled
	}
	state, err := jwtpkg.Generate(stateSubject, s.cfg.JWTSecret, stateTTL)
	if err != nil {
		return "", err
	}
	return s.provider.AuthURL(state), nil
}

// ProviderCallback validates the state nonce, resolves the provider identity
// and signs the caller in, creating the account on first contact.
func (s Service) ProviderCallback(ctx context.Context, state, code string) (*domain.User, string, error) {
	if s.provider == nil {
		return nil, "", ErrProviderDisabled
	}
	claims, err := jwtpkg.Parse(state, s.cfg.JWTSecret)
	if err != nil || claims.UserID != stateSubject {
		return nil, "", errors.New("invalid oauth state")
	}
	name, email, err := s.provider.ResolveIdentity(ctx, code)
	if err != nil {
		return nil, "", err
	}
	user, err := s.FindOrCreateByEmail(ctx, name, email)
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("provider sign-in", "user_id", user.ID)
	return user, token, nil
}

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleProvider implements IdentityProvider against Google's OAuth 2.0
// authorization-code flow.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	client       *http.Client
}

// NewGoogleProvider constructs a GoogleProvider, or nil when unconfigured.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &GoogleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL builds the consent-screen redirect target.
func (g *GoogleProvider) AuthURL(state string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", g.clientID)
	query.Set("redirect_uri", g.redirectURL)
	query.Set("scope", "openid email profile")
	query.Set("state", state)
	return googleAuthURL + "?" + query.Encode()
}

// ResolveIdentity exchanges the authorization code and fetches the profile.
func (g *GoogleProvider) ResolveIdentity(ctx context.Context, code string) (string, string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("redirect_uri", g.redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("token exchange failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", "", err
	}
	if tokenResp.AccessToken == "" {
		return "", "", errors.New("token exchange returned no access token")
	}

	infoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return "", "", err
	}
	infoReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)

	infoResp, err := g.client.Do(infoReq)
	if err != nil {
		return "", "", err
	}
	defer infoResp.Body.Close()
	if infoResp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("userinfo fetch failed: %s", infoResp.Status)
	}
	var profile struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(infoResp.Body).Decode(&profile); err != nil {
		return "", "", err
	}
	if profile.Email == "" {
		return "", "", errors.New("provider profile has no email")
	}
	return profile.Name, profile.Email, nil
}
