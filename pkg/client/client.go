/*
Package client is the gateway to the platform API. Every controller of the application core talks to the platform
through a single Client, which owns the bearer token and notifies listeners when a session starts or ends.

All methods take a context and are safe for concurrent use.
*/
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/silktrader/deadpoets/pkg/auth"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorised = errors.New("unauthorised")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
)

// Error is a non successful platform response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("platform responded %d: %s", e.Status, e.Message)
}

// Is matches the status code against the package's sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorised:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrInvalid:
		return e.Status == http.StatusBadRequest
	}
	return false
}

type AuthEvent int

const (
	SignedIn AuthEvent = iota
	SignedOut
)

func (e AuthEvent) String() string {
	if e == SignedIn {
		return "SIGNED_IN"
	}
	return "SIGNED_OUT"
}

// AuthListener receives session changes; user is nil on sign out.
type AuthListener func(event AuthEvent, user *auth.User)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

type Client struct {
	base   *url.URL
	http   *http.Client
	logger logrus.FieldLogger

	// stream shares the transport of http but has no overall timeout, for long lived event streams
	stream *http.Client

	mu        sync.RWMutex
	token     string
	listeners map[int]AuthListener
	nextId    int
}

func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:      base,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
		stream:    &http.Client{Transport: cfg.HTTPClient.Transport},
		listeners: make(map[int]AuthListener),
	}, nil
}

// Token returns the current bearer token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken restores a stored session without notifying listeners.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// OnAuthStateChange registers a listener and returns its removal function.
func (c *Client) OnAuthStateChange(listener AuthListener) (unsubscribe func()) {
	c.mu.Lock()
	var id = c.nextId
	c.nextId++
	c.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) notify(event AuthEvent, user *auth.User) {
	c.mu.RLock()
	var listeners = make([]AuthListener, 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.mu.RUnlock()

	for _, listener := range listeners {
		listener(event, user)
	}
}

func (c *Client) endpoint(path string, values url.Values) string {
	var target = *c.base
	target.Path = c.base.Path + path
	if len(values) > 0 {
		target.RawQuery = values.Encode()
	}
	return target.String()
}

// do sends a JSON request and decodes the JSON response into out, when given.
func (c *Client) do(ctx context.Context, method, path string, values url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, values), reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return c.send(request, out)
}

func (c *Client) send(request *http.Request, out any) error {
	request.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusMultipleChoices {
		return readError(response)
	}
	if out == nil || response.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err = json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", request.Method, request.URL.Path, err)
	}
	return nil
}

// readError extracts the message of the platform's error bodies, which carry either an "error" or a "message" key.
func readError(response *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	var platformErr = &Error{Status: response.StatusCode}
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<16)).Decode(&body); err == nil {
		platformErr.Message = body.Error
		if platformErr.Message == "" {
			platformErr.Message = body.Message
		}
	}
	return platformErr
}
