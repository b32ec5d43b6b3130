package readlater

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"hackers/pkg/hn"
)

// Default API roots.
const (
	InstapaperBaseURL  = "https://www.instapaper.com"
	ReadabilityBaseURL = "https://www.readability.com"
)

// XAuth is a service that exchanges a username and password for an OAuth 1.0a token
// and bookmarks links with signed form posts.
type XAuth struct {
	client          *http.Client
	logger          *slog.Logger
	config          *oauth1.Config
	addForm         func(Item) url.Values
	name            string
	baseURL         string
	accessTokenPath string
	addPath         string
	attempts        uint
}

// NewInstapaper returns an Instapaper client for the given consumer key.
func NewInstapaper(client *http.Client, consumerKey, consumerSecret string, logger *slog.Logger) *XAuth {
	return &XAuth{
		client:          client,
		logger:          logger,
		config:          oauth1.NewConfig(consumerKey, consumerSecret),
		name:            "instapaper",
		baseURL:         InstapaperBaseURL,
		accessTokenPath: "/api/1/oauth/access_token",
		addPath:         "/api/1/bookmarks/add",
		attempts:        3,
		addForm: func(it Item) url.Values {
			v := url.Values{"url": {it.URL}, "resolve_final_url": {"1"}}
			if it.Title != "" {
				v.Set("title", it.Title)
			}
			if it.Description != "" {
				v.Set("description", it.Description)
			}
			if it.Folder != "" {
				v.Set("folder_id", it.Folder)
			}
			return v
		},
	}
}

// NewReadability returns a Readability client for the given consumer key.
func NewReadability(client *http.Client, consumerKey, consumerSecret string, logger *slog.Logger) *XAuth {
	return &XAuth{
		client:          client,
		logger:          logger,
		config:          oauth1.NewConfig(consumerKey, consumerSecret),
		name:            "readability",
		baseURL:         ReadabilityBaseURL,
		accessTokenPath: "/api/rest/v1/oauth/access_token/",
		addPath:         "/api/rest/v1/bookmarks",
		attempts:        3,
		addForm: func(it Item) url.Values {
			return url.Values{"url": {it.URL}}
		},
	}
}

// WithBaseURL points the client at another API root.
func (x *XAuth) WithBaseURL(base string) *XAuth {
	x.baseURL = strings.TrimSuffix(base, "/")
	return x
}

// WithAttempts sets how often a request is tried before giving up.
func (x *XAuth) WithAttempts(n uint) *XAuth {
	x.attempts = n
	return x
}

// Name identifies the service.
func (x *XAuth) Name() string {
	return x.name
}

// signedClient returns an HTTP client that signs with token over the configured transport.
func (x *XAuth) signedClient(ctx context.Context, token *oauth1.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth1.HTTPClient, x.client)
	c := x.config.Client(ctx, token)
	c.Timeout = x.client.Timeout
	return c
}

// Login performs the xAuth exchange.
func (x *XAuth) Login(ctx context.Context, username, password string) (*hn.Credential, error) {
	op := x.name + " login"
	form := url.Values{
		"x_auth_username": {username},
		"x_auth_password": {password},
		"x_auth_mode":     {"client_auth"},
	}

	var body []byte
	err := doWithRetry(ctx, x.logger, x.name, "login", x.attempts, func() error {
		resp, err := x.postForm(ctx, oauth1.NewToken("", ""), x.accessTokenPath, form)
		if err != nil {
			return classifyTransport(op, err)
		}
		defer closeBody(x.logger, resp)

		if resp.StatusCode != http.StatusOK {
			return classifyStatus(op, resp)
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return classifyTransport(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, unwrapClassified(err)
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, hn.AuthError(op, hn.UnknownReason, fmt.Errorf("parse token response: %w", err))
	}
	cred := &hn.Credential{
		Service:   x.name,
		Account:   username,
		Token:     values.Get("oauth_token"),
		Secret:    values.Get("oauth_token_secret"),
		CreatedAt: time.Now().UTC(),
	}
	if cred.IsEmpty() {
		return nil, hn.AuthError(op, hn.UnknownReason, fmt.Errorf("response carried no oauth_token"))
	}

	x.logger.Info("Read-later login succeeded", "service", x.name, "account", username)
	return cred, nil
}

// Add bookmarks item for the credential's owner.
func (x *XAuth) Add(ctx context.Context, cred *hn.Credential, item Item) error {
	op := x.name + " add"
	if cred.IsEmpty() {
		return &hn.Error{Kind: hn.KindUnauthenticated, Op: op}
	}

	token := oauth1.NewToken(cred.Token, cred.Secret)
	err := doWithRetry(ctx, x.logger, x.name, "add", x.attempts, func() error {
		resp, err := x.postForm(ctx, token, x.addPath, x.addForm(item))
		if err != nil {
			return classifyTransport(op, err)
		}
		defer closeBody(x.logger, resp)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return classifyStatus(op, resp)
		}
		return nil
	})
	if err != nil {
		return unwrapClassified(err)
	}

	x.logger.Info("Link saved for later", "service", x.name, "url", item.URL)
	return nil
}

func (x *XAuth) postForm(ctx context.Context, token *oauth1.Token, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return x.signedClient(ctx, token).Do(req)
}
