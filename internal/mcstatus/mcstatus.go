// Package mcstatus は公開ステータス API 経由で Minecraft サーバーの
// 稼働状況を照会する
package mcstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Status はステータス API のレスポンスを要約したもの
type Status struct {
	Address       string
	Online        bool
	MOTD          string
	Version       string
	PlayersOnline int
	PlayersMax    int
}

// Checker はステータス API へのクライアント
type Checker struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewChecker は新しい Checker を作成する
func NewChecker(baseURL string) *Checker {
	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		// ステータス API は 1 req/sec、バースト 2 に抑える
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// Check は指定アドレスのサーバー状況を照会する
// port が 0 の場合はアドレスのみで照会する
func (c *Checker) Check(ctx context.Context, address string, port int) (*Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target := address
	if port > 0 {
		target = fmt.Sprintf("%s:%d", address, port)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(target), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload struct {
		Online  bool   `json:"online"`
		Version string `json:"version"`
		Players struct {
			Online int `json:"online"`
			Max    int `json:"max"`
		} `json:"players"`
		MOTD struct {
			Clean []string `json:"clean"`
		} `json:"motd"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &Status{
		Address:       target,
		Online:        payload.Online,
		MOTD:          strings.Join(payload.MOTD.Clean, "\n"),
		Version:       payload.Version,
		PlayersOnline: payload.Players.Online,
		PlayersMax:    payload.Players.Max,
	}, nil
}
