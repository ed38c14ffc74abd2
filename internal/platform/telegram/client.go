// Package telegram is a minimal Bot API client used to check channel
// subscriptions and boosts.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.telegram.org"

type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

func NewClient(token, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// RPSError is returned when Telegram answers 429.
type RPSError struct {
	RetryAfter time.Duration
}

func (e *RPSError) Error() string {
	return fmt.Sprintf("telegram: too many requests, retry after %s", e.RetryAfter)
}

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type tgResponse[T any] struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
	Result T `json:"result"`
}

// ChatMember is the subset of getChatMember the service reads.
type ChatMember struct {
	Status   string `json:"status"`
	IsMember bool   `json:"is_member"`
}

// Subscribed reports whether the member currently belongs to the chat.
func (m ChatMember) Subscribed() bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	}
	return false
}

// IsMember checks userID's membership in channelID.
func (c *Client) IsMember(ctx context.Context, userID, channelID int64) (bool, error) {
	m, err := call[ChatMember](ctx, c, "getChatMember", url.Values{
		"chat_id": {strconv.FormatInt(channelID, 10)},
		"user_id": {strconv.FormatInt(userID, 10)},
	})
	if err != nil {
		return false, err
	}
	return m.Subscribed(), nil
}

type userChatBoosts struct {
	Boosts []struct {
		BoostID string `json:"boost_id"`
	} `json:"boosts"`
}

// GetBoostCount returns how many active boosts userID has given channelID.
func (c *Client) GetBoostCount(ctx context.Context, userID, channelID int64) (int, error) {
	res, err := call[userChatBoosts](ctx, c, "getUserChatBoosts", url.Values{
		"chat_id": {strconv.FormatInt(channelID, 10)},
		"user_id": {strconv.FormatInt(userID, 10)},
	})
	if err != nil {
		return 0, err
	}
	return len(res.Boosts), nil
}

func call[T any](ctx context.Context, c *Client, method string, params url.Values) (T, error) {
	var zero T
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	var out tgResponse[T]
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("telegram %s: decode (status %d): %w", method, resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || out.ErrorCode == http.StatusTooManyRequests {
		retry := time.Second
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			retry = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return zero, &RPSError{RetryAfter: retry}
	}
	if !out.Ok {
		return zero, &APIError{Method: method, Code: out.ErrorCode, Description: out.Description}
	}
	return out.Result, nil
}
