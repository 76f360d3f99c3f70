// Package secondme is the client for the SecondMe platform: OAuth token
// lifecycle, user profile/personalization reads, and the streaming act
// endpoint that produces trade decisions.
package secondme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"papertrade/internal/config"
	"papertrade/internal/trading"
)

type Client struct {
	httpClient   *http.Client
	apiBase      string
	oauthURL     string
	clientID     string
	clientSecret string
	redirectURI  string
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("secondme API error (%d): %s", e.Status, e.Body)
}

// envelope is the platform's uniform response wrapper; code 0 means ok.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(httpClient *http.Client, cfg config.SecondMeConfig) *Client {
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://app.mindos.com/gate/lab"
	}
	oauthURL := cfg.OAuthURL
	if oauthURL == "" {
		oauthURL = "https://go.second.me/oauth/"
	}
	return &Client{
		httpClient:   httpClient,
		apiBase:      apiBase,
		oauthURL:     oauthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
	}
}

// AuthorizationURL builds the login redirect target for the OAuth flow.
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	return c.oauthURL + "?" + params.Encode()
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (trading.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	return c.tokenRequest(ctx, "/api/oauth/token/code", form)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (trading.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	return c.tokenRequest(ctx, "/api/oauth/token/refresh", form)
}

func (c *Client) tokenRequest(ctx context.Context, path string, form url.Values) (trading.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return trading.Token{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.do(req)
	if err != nil {
		return trading.Token{}, err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return trading.Token{}, fmt.Errorf("failed to decode token: %w", err)
	}
	return trading.Token{
		AccessToken:  td.AccessToken,
		RefreshToken: td.RefreshToken,
		ExpiresIn:    td.ExpiresIn,
	}, nil
}

// UserInfo is the subset of the profile the service stores.
type UserInfo struct {
	UserID string
	Name   string
	Email  string
	Avatar string
	Bio    string
}

func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	data, err := c.getAuthed(ctx, "/api/secondme/user/info", accessToken)
	if err != nil {
		return UserInfo{}, err
	}
	var raw struct {
		UserID           string `json:"userId"`
		ID               string `json:"id"`
		Name             string `json:"name"`
		Email            string `json:"email"`
		Avatar           string `json:"avatar"`
		AvatarURL        string `json:"avatarUrl"`
		Bio              string `json:"bio"`
		SelfIntroduction string `json:"selfIntroduction"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return UserInfo{}, fmt.Errorf("failed to decode user info: %w", err)
	}
	info := UserInfo{
		UserID: raw.UserID,
		Name:   raw.Name,
		Email:  raw.Email,
		Avatar: raw.Avatar,
		Bio:    raw.Bio,
	}
	if info.UserID == "" {
		info.UserID = raw.ID
	}
	if info.Avatar == "" {
		info.Avatar = raw.AvatarURL
	}
	if info.Bio == "" {
		info.Bio = raw.SelfIntroduction
	}
	return info, nil
}

// GetUserShades returns the user's interest tags.
func (c *Client) GetUserShades(ctx context.Context, accessToken string) ([]string, error) {
	data, err := c.getAuthed(ctx, "/api/secondme/user/shades", accessToken)
	if err != nil {
		return nil, err
	}
	return decodeNameList(data)
}

// GetUserSoftMemory returns the user's soft memory snippets.
func (c *Client) GetUserSoftMemory(ctx context.Context, accessToken string) ([]string, error) {
	data, err := c.getAuthed(ctx, "/api/secondme/user/softmemory", accessToken)
	if err != nil {
		return nil, err
	}
	return decodeNameList(data)
}

// decodeNameList accepts either a bare string array or a list of objects with
// a name/content field; the platform has served both shapes.
func decodeNameList(data []byte) ([]string, error) {
	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}
	var objs []struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		if o.Name != "" {
			out = append(out, o.Name)
			continue
		}
		if o.Content != "" {
			out = append(out, o.Content)
		}
	}
	return out, nil
}

func (c *Client) getAuthed(ctx context.Context, path, accessToken string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("secondme error %d: %s", env.Code, env.Message)
	}
	return env.Data, nil
}
