package readlater

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hackers/pkg/hn"
)

// PocketBaseURL is the default Pocket API root.
const PocketBaseURL = "https://getpocket.com"

// Pocket talks to the Pocket v3 JSON API. The access token travels in the request body.
type Pocket struct {
	client      *http.Client
	logger      *slog.Logger
	consumerKey string
	baseURL     string
	attempts    uint
}

// NewPocket returns a Pocket client for the given consumer key.
func NewPocket(client *http.Client, consumerKey string, logger *slog.Logger) *Pocket {
	return &Pocket{
		client:      client,
		logger:      logger,
		consumerKey: consumerKey,
		baseURL:     PocketBaseURL,
		attempts:    3,
	}
}

// WithBaseURL points the client at another API root.
func (p *Pocket) WithBaseURL(base string) *Pocket {
	p.baseURL = strings.TrimSuffix(base, "/")
	return p
}

// WithAttempts sets how often a request is tried before giving up.
func (p *Pocket) WithAttempts(n uint) *Pocket {
	p.attempts = n
	return p
}

// Name identifies the service.
func (*Pocket) Name() string {
	return "pocket"
}

type pocketAuthResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
}

// Login exchanges account credentials for an access token.
func (p *Pocket) Login(ctx context.Context, username, password string) (*hn.Credential, error) {
	op := "pocket login"
	payload := map[string]string{
		"consumer_key": p.consumerKey,
		"username":     username,
		"password":     password,
		"grant_type":   "credentials",
	}

	var out pocketAuthResponse
	err := doWithRetry(ctx, p.logger, p.Name(), "login", p.attempts, func() error {
		return p.post(ctx, op, "/v3/oauth/authorize", payload, &out)
	})
	if err != nil {
		return nil, unwrapClassified(err)
	}
	if out.AccessToken == "" {
		return nil, hn.AuthError(op, hn.UnknownReason, fmt.Errorf("response carried no access_token"))
	}

	account := out.Username
	if account == "" {
		account = username
	}
	p.logger.Info("Read-later login succeeded", "service", p.Name(), "account", account)
	return &hn.Credential{
		Service:   p.Name(),
		Account:   account,
		Token:     out.AccessToken,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Add saves item to the user's list.
func (p *Pocket) Add(ctx context.Context, cred *hn.Credential, item Item) error {
	op := "pocket add"
	if cred.IsEmpty() {
		return &hn.Error{Kind: hn.KindUnauthenticated, Op: op}
	}
	payload := map[string]string{
		"consumer_key": p.consumerKey,
		"access_token": cred.Token,
		"url":          item.URL,
	}
	if item.Title != "" {
		payload["title"] = item.Title
	}

	err := doWithRetry(ctx, p.logger, p.Name(), "add", p.attempts, func() error {
		return p.post(ctx, op, "/v3/add", payload, nil)
	})
	if err != nil {
		return unwrapClassified(err)
	}

	p.logger.Info("Link saved for later", "service", p.Name(), "url", item.URL)
	return nil
}

func (p *Pocket) post(ctx context.Context, op, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer closeBody(p.logger, resp)

	if resp.StatusCode != http.StatusOK {
		// Pocket explains failures in a header rather than the body.
		if reason := resp.Header.Get("X-Error"); reason != "" {
			p.logger.Warn("Pocket request rejected", "op", op, "status_code", resp.StatusCode, "reason", reason)
		}
		return classifyStatus(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &hn.Error{Kind: hn.KindRequestFailure, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
