// Package onebot adapts a OneBot v11 HTTP endpoint to the gate's chat
// capabilities and turns its event reports into gate events.
package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/internal/secret"
	"github.com/jmcleod/chiralgate/session"
)

// ErrAPI is returned when the OneBot implementation answers a call with a
// failure status.
var ErrAPI = errors.New("onebot api error")

const (
	DefaultBaseURL = "http://127.0.0.1:5700"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      *secret.Token
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls OneBot actions over HTTP.
type Client struct {
	base    string
	token   *secret.Token
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

var _ gate.Transport = (*Client)(nil)

// NewClient returns a client for the OneBot HTTP API at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("onebot base url %q must be http or https", base)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		base:    base,
		token:   opts.Token,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		logger:  opts.Logger.With("component", "onebot"),
	}, nil
}

type apiResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
}

// Call invokes action with params and returns the response data.
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", action, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+action, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !c.token.Empty() {
		if err := c.token.Use(func(tok []byte) error {
			req.Header.Set("Authorization", "Bearer "+string(tok))
			return nil
		}); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrAPI, action, resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %s returned undecodable body: %v", ErrAPI, action, err)
	}
	if out.Retcode != 0 || (out.Status != "" && out.Status != "ok" && out.Status != "async") {
		msg := out.Wording
		if msg == "" {
			msg = out.Message
		}
		return nil, fmt.Errorf("%w: %s status=%s retcode=%d %s", ErrAPI, action, out.Status, out.Retcode, msg)
	}
	c.logger.Debug("action ok", "action", action)
	return out.Data, nil
}

// SendPrivate sends msg to a user.
func (c *Client) SendPrivate(ctx context.Context, userID int64, msg gate.Message) error {
	_, err := c.Call(ctx, "send_private_msg", map[string]any{
		"user_id": userID,
		"message": encodeMessage(msg),
	})
	return err
}

// SendGroup sends msg to a group.
func (c *Client) SendGroup(ctx context.Context, groupID int64, msg gate.Message) error {
	_, err := c.Call(ctx, "send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  encodeMessage(msg),
	})
	return err
}

// Admit approves a pending join request. A member who already joined
// needs no action.
func (c *Client) Admit(ctx context.Context, p gate.Pending) error {
	if p.Admission.Kind != session.RequestJoin {
		return nil
	}
	_, err := c.Call(ctx, "set_group_add_request", map[string]any{
		"flag":     p.Admission.Token,
		"sub_type": "add",
		"approve":  true,
	})
	return err
}

// Remove declines a pending join request with reason, or kicks a member
// who already joined and blocks their future requests.
func (c *Client) Remove(ctx context.Context, p gate.Pending, reason string) error {
	if p.Admission.Kind == session.RequestJoin {
		_, err := c.Call(ctx, "set_group_add_request", map[string]any{
			"flag":     p.Admission.Token,
			"sub_type": "add",
			"approve":  false,
			"reason":   reason,
		})
		return err
	}
	_, err := c.Call(ctx, "set_group_kick", map[string]any{
		"group_id":           p.GroupID,
		"user_id":            p.SubjectID,
		"reject_add_request": true,
	})
	return err
}

// LoginInfo returns the bot's own account id.
func (c *Client) LoginInfo(ctx context.Context) (int64, error) {
	data, err := c.Call(ctx, "get_login_info", struct{}{})
	if err != nil {
		return 0, err
	}
	var info struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return 0, fmt.Errorf("%w: get_login_info data: %v", ErrAPI, err)
	}
	return info.UserID, nil
}
