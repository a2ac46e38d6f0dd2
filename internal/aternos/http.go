package aternos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HTTPClient はブリッジ API 経由の Client 実装
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
	limiter *rate.Limiter
}

// NewHTTPClient は新しい HTTPClient を作成する
// limiter はプロバイダーのリクエスト上限に収めるため全呼び出しで共有
func NewHTTPClient(baseURL, sessionDir string) (*HTTPClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	tokens, err := NewTokenStore(sessionDir)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		tokens: tokens,
		// 2 req/sec、バースト 3
		limiter: rate.NewLimiter(rate.Limit(2), 3),
	}, nil
}

// Authenticate はユーザー名とパスワードでセッションを確立する
func (c *HTTPClient) Authenticate(ctx context.Context, username, password string) (SessionHandle, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/login", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("login response contained no token")
	}

	log.Debug().Str("username", username).Msg("Authenticated against provider")
	return &handle{client: c, token: payload.Token}, nil
}

// RestoreSession は保存済みトークンからセッションを復元する
func (c *HTTPClient) RestoreSession(ctx context.Context, username string) (SessionHandle, error) {
	token, err := c.tokens.Load(username)
	if err != nil {
		return nil, err
	}
	return &handle{client: c, token: token}, nil
}

// handle は1セッション分の認証済みハンドル
type handle struct {
	client *HTTPClient
	token  string
}

// ListServers はアカウントが所有するサーバー一覧を取得する
func (h *handle) ListServers(ctx context.Context) ([]Server, error) {
	resp, err := h.client.do(ctx, http.MethodGet, "/servers", h.token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrNoStoredSession
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server list returned status %d", resp.StatusCode)
	}

	var payload struct {
		Servers []Server `json:"servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse server list: %w", err)
	}
	return payload.Servers, nil
}

// Start はサーバーを起動する
func (h *handle) Start(ctx context.Context, address string) error {
	return h.action(ctx, "start", address)
}

// Stop はサーバーを停止する
func (h *handle) Stop(ctx context.Context, address string) error {
	return h.action(ctx, "stop", address)
}

// Persist はトークンをファイルに保存する
func (h *handle) Persist(username string) error {
	return h.client.tokens.Save(username, h.token)
}

// action は start/stop を実行し、プロバイダー側エラーを
// ActionFailedError として返す。再試行はしない（冪等でないため）
func (h *handle) action(ctx context.Context, action, address string) error {
	path := fmt.Sprintf("/servers/%s/%s", url.PathEscape(address), action)
	resp, err := h.client.do(ctx, http.MethodPost, path, h.token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNoStoredSession
	}
	if resp.StatusCode != http.StatusOK {
		return &ActionFailedError{
			Action: action,
			Server: address,
			Reason: readErrorReason(resp),
		}
	}
	return nil
}

// do はレートリミッターを通した上でリクエストを送る
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	return resp, nil
}

// readErrorReason はエラーレスポンスから理由を取り出す
// JSON の error/message フィールドを優先し、無ければ本文をそのまま使う
func readErrorReason(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
