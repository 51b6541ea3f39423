package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/thenewspaper/newsroom-cli/internal/auth"
	"github.com/thenewspaper/newsroom-cli/internal/config"
	"github.com/thenewspaper/newsroom-cli/internal/util"
)

// Payload is a successful API response. A 204 or empty 2xx body yields
// NoContent=true so callers can tell "no data" apart from an empty object.
type Payload struct {
	body []byte

	// NoContent marks a success response that carried no body.
	NoContent bool
}

// JSON returns the body for shape probing. The zero result is returned for
// no-content payloads.
func (p *Payload) JSON() gjson.Result {
	if p == nil || p.NoContent {
		return gjson.Result{}
	}
	return gjson.ParseBytes(p.body)
}

// Bytes returns the raw response body.
func (p *Payload) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.body
}

// Client issues bearer-authenticated requests against the newsroom backend.
// It performs no retries; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	store      *auth.TokenStore
	httpClient *http.Client
}

// NewClient creates a client for the configured backend, reading
// credentials through the given token store.
func NewClient(cfg *config.Config, store *auth.TokenStore) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		store:      store,
		httpClient: util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 30 * time.Second}),
	}
}

// Call performs an authenticated request. The path is joined to the
// configured base URL. Extra headers are merged over the defaults, but the
// Authorization header cannot be overridden or unset by the caller. With no
// stored credential it fails with KindNoLogin before any network I/O.
func (c *Client) Call(ctx context.Context, method, path string, body []byte, extra http.Header) (*Payload, error) {
	bundle := c.store.Load()
	if bundle == nil {
		return nil, &Error{Kind: KindNoLogin, Message: "you must be logged in"}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetworkError, Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range extra {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			continue
		}
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Authorization", "Bearer "+bundle.IDToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debugf("request %s %s failed at transport: %v", method, path, err)
		return nil, &Error{Kind: KindNetworkError, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetworkError, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &Error{Kind: KindUnauthorized, Status: resp.StatusCode, Message: "login expired or rejected"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = resp.Status
		}
		log.WithFields(log.Fields{"path": path, "status": resp.StatusCode}).Debug("backend rejected request")
		return nil, &Error{Kind: KindHTTPError, Status: resp.StatusCode, Message: message}
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return &Payload{NoContent: true}, nil
	}
	return &Payload{body: respBody}, nil
}

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, path string) (*Payload, error) {
	return c.Call(ctx, http.MethodGet, path, nil, nil)
}

// Post issues an authenticated POST with a JSON body. A nil body sends the
// empty JSON object.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Payload, error) {
	if body == nil {
		body = []byte("{}")
	}
	return c.Call(ctx, http.MethodPost, path, body, nil)
}
