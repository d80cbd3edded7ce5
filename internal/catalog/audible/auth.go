package audible

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/catalog"
)

const (
	appName    = "Audible"
	appVersion = "3.56.2"

	statusActive      = "active"
	statusOTPRequired = "otp_required"
)

// loginRequest is sent to {AuthURL}/login.
type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Marketplace string `json:"marketplace"`
}

// otpRequest is sent to {AuthURL}/otp.
type otpRequest struct {
	Marketplace string `json:"marketplace"`
	Challenge   []byte `json:"challenge"`
	Code        string `json:"code"`
}

// authResponse is returned by both auth endpoints.
type authResponse struct {
	Status    string                `json:"status"`
	Session   *catalog.SessionState `json:"session,omitempty"`
	Challenge []byte                `json:"challenge,omitempty"`
}

// tokenResponse is returned by the Amazon token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Login submits credentials. The result holds either a session or an OTP
// challenge to pass to SubmitOTP.
func (c *Client) Login(ctx context.Context, req catalog.LoginRequest) (*catalog.LoginResult, error) {
	m, err := catalog.LookupMarketplace(req.Marketplace)
	if err != nil {
		return nil, err
	}

	var resp authResponse
	body := loginRequest{Username: req.Username, Password: req.Password, Marketplace: m.Code}
	if err := c.postAuth(ctx, "login", m, "/login", body, catalog.ErrInvalidCredentials, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case statusOTPRequired:
		if len(resp.Challenge) == 0 {
			return nil, &Error{Op: "login", Marketplace: m.Code, Err: errors.New("otp challenge missing from response")}
		}
		return &catalog.LoginResult{Challenge: &catalog.OTPChallenge{Marketplace: m.Code, State: resp.Challenge}}, nil
	case statusActive:
		session, err := completeSession(resp.Session, m)
		if err != nil {
			return nil, &Error{Op: "login", Marketplace: m.Code, Err: err}
		}
		return &catalog.LoginResult{Session: session}, nil
	default:
		return nil, &Error{Op: "login", Marketplace: m.Code, Err: fmt.Errorf("unexpected login status %q", resp.Status)}
	}
}

// SubmitOTP answers a pending challenge.
func (c *Client) SubmitOTP(ctx context.Context, challenge catalog.OTPChallenge, code string) (*catalog.SessionState, error) {
	m, err := catalog.LookupMarketplace(challenge.Marketplace)
	if err != nil {
		return nil, err
	}

	var resp authResponse
	body := otpRequest{Marketplace: m.Code, Challenge: challenge.State, Code: code}
	if err := c.postAuth(ctx, "submit_otp", m, "/otp", body, catalog.ErrOTPRejected, &resp); err != nil {
		return nil, err
	}

	if resp.Status != statusActive {
		return nil, &Error{Op: "submit_otp", Marketplace: m.Code, Err: catalog.ErrOTPRejected}
	}

	session, err := completeSession(resp.Session, m)
	if err != nil {
		return nil, &Error{Op: "submit_otp", Marketplace: m.Code, Err: err}
	}
	return session, nil
}

// Refresh exchanges the refresh token for a new access token. The refresh
// token is kept when the endpoint does not rotate it.
func (c *Client) Refresh(ctx context.Context, prior *catalog.SessionState) (*catalog.SessionState, error) {
	if !prior.CanRefresh() {
		return nil, &Error{Op: "refresh", Err: catalog.ErrRefreshRejected}
	}

	m, err := catalog.LookupMarketplace(prior.LocaleCode)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx, m.Code); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	form := url.Values{}
	form.Set("app_name", appName)
	form.Set("app_version", appVersion)
	form.Set("source_token", prior.RefreshToken)
	form.Set("requested_token_type", "access_token")
	form.Set("source_token_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(m), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Op: "refresh", Marketplace: m.Code, Err: fmt.Errorf("%w: %v", catalog.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	// The token endpoint answers invalid_grant with 400.
	if resp.StatusCode == http.StatusBadRequest {
		return nil, &Error{Op: "refresh", Marketplace: m.Code, Status: resp.StatusCode, Err: catalog.ErrRefreshRejected}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: "refresh", Marketplace: m.Code, Status: resp.StatusCode, Err: statusError(resp, catalog.ErrRefreshRejected)}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, &Error{Op: "refresh", Marketplace: m.Code, Err: fmt.Errorf("%w: decode response: %v", catalog.ErrNetwork, err)}
	}
	if token.AccessToken == "" {
		return nil, &Error{Op: "refresh", Marketplace: m.Code, Err: catalog.ErrRefreshRejected}
	}

	next := *prior
	next.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	next.Expires = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return &next, nil
}

func (c *Client) tokenURL(m catalog.Marketplace) string {
	if c.cfg.TokenURL != "" {
		return c.cfg.TokenURL
	}
	return "https://" + m.TokenHost() + "/auth/token"
}

func (c *Client) postAuth(ctx context.Context, op string, m catalog.Marketplace, path string, body any, unauthorized error, out *authResponse) error {
	if c.cfg.AuthURL == "" {
		return &Error{Op: op, Marketplace: m.Code, Err: catalog.ErrAuthNotConfigured}
	}

	if err := c.limiter.Wait(ctx, m.Code); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.AuthURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Op: op, Marketplace: m.Code, Err: fmt.Errorf("%w: %v", catalog.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return &Error{Op: op, Marketplace: m.Code, Status: resp.StatusCode, Err: catalog.ErrInvalidMarketplace}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: op, Marketplace: m.Code, Status: resp.StatusCode, Err: statusError(resp, unauthorized)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Marketplace: m.Code, Err: fmt.Errorf("%w: decode response: %v", catalog.ErrNetwork, err)}
	}
	return nil
}

// completeSession validates a session from the auth endpoint and fills in
// the marketplace when the endpoint omits it.
func completeSession(session *catalog.SessionState, m catalog.Marketplace) (*catalog.SessionState, error) {
	if session == nil || session.AccessToken == "" {
		return nil, errors.New("session missing from response")
	}
	if session.LocaleCode == "" {
		session.LocaleCode = m.Code
	}
	if session.Expires.IsZero() {
		session.Expires = time.Now().Add(time.Hour)
	}
	return session, nil
}
