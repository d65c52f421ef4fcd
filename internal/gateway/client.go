// Package gateway talks to the AuditPro web service. Every response is
// wrapped in the same envelope:
//
//	{"status": "success"|"error", "message": "...", "data": {...}|[...]}
//
// The message is optional.
//
// A client runs one request at a time; each request can be stopped through
// its context or through Cancel.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the production web service root.
const DefaultBaseURL = "https://api.auditpro.io/api/"

const maxBodyBytes = 32 * 1024 * 1024

// Config holds client options.
type Config struct {
	BaseURL    string        `validate:"required,url"`
	Timeout    time.Duration `validate:"gte=0"`
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
		Logger:  logrus.StandardLogger().WithField("component", "gateway"),
	}
}

// Client is the web service client.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   logrus.FieldLogger
	validate *validator.Validate

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
}

// New creates a client against the production service.
func New() *Client {
	c, _ := NewWithConfig(DefaultConfig())
	return c
}

// NewWithConfig creates a client with custom configuration.
func NewWithConfig(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return &Client{
		baseURL:  base,
		http:     hc,
		logger:   logger,
		validate: v,
	}, nil
}

// Cancel stops the request in flight, if any.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Busy reports whether a request is in flight.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Client) begin(ctx context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, nil, ErrBusy
	}
	c.busy = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		cancel()
		c.cancel = nil
		c.busy = false
	}, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	endpoint := "login/" + url.PathEscape(email) + "/" + url.PathEscape(password)
	data, err := c.call(ctx, http.MethodGet, endpoint, nil, "login", true)
	if err != nil {
		return "", err
	}
	token := data.Get("session_id")
	if token.Type != gjson.String || token.String() == "" {
		return "", &Error{Message: "Missing login token"}
	}
	return token.String(), nil
}

// FetchCurrentUser returns the user the token belongs to.
func (c *Client) FetchCurrentUser(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, &Error{Message: "Login required to get user information"}
	}
	data, err := c.call(ctx, http.MethodGet, "user/"+url.PathEscape(token), nil, "user", true)
	if err != nil {
		return model.User{}, err
	}
	if !data.IsObject() {
		return model.User{}, &Error{Message: "Missing user response"}
	}
	u := parseUser(data)
	if err := c.validate.Struct(u); err != nil {
		c.logger.WithError(err).Warn("invalid user response")
		return model.User{}, &Error{Message: "Missing user response", Err: err}
	}
	return u, nil
}

// FetchStores returns the stores the user may audit. Invalid records are
// skipped.
func (c *Client) FetchStores(ctx context.Context, token string) ([]model.Store, error) {
	if token == "" {
		return nil, &Error{Message: "Login required to get store information"}
	}
	data, err := c.call(ctx, http.MethodGet, "stores/"+url.PathEscape(token), nil, "stores", true)
	if err != nil {
		return nil, err
	}
	if !data.IsArray() {
		return nil, &Error{Message: "Invalid stores response"}
	}

	var stores []model.Store
	for i, item := range data.Array() {
		s := parseStore(item)
		if err := c.validate.Struct(s); err != nil {
			c.logger.WithFields(logrus.Fields{"index": i, "store_id": s.ID, "store_name": s.StoreName}).Warn("skipping invalid store")
			continue
		}
		stores = append(stores, s)
	}
	if len(stores) == 0 {
		return nil, &Error{Message: "No valid stores received from web service"}
	}
	return stores, nil
}

// FetchProducts returns the products of every chain the user may audit.
// Invalid records are skipped.
func (c *Client) FetchProducts(ctx context.Context, token string) ([]model.Product, error) {
	if token == "" {
		return nil, &Error{Message: "Login required to get product information"}
	}
	data, err := c.call(ctx, http.MethodGet, "products/"+url.PathEscape(token), nil, "products", true)
	if err != nil {
		return nil, err
	}
	if !data.IsArray() {
		return nil, &Error{Message: "Invalid products response"}
	}

	var products []model.Product
	for i, item := range data.Array() {
		p := parseProduct(item)
		if err := c.validate.Struct(p); err != nil {
			c.logger.WithFields(logrus.Fields{"index": i, "product_id": p.ID, "product_name": p.ProductName}).Warn("skipping invalid product")
			continue
		}
		products = append(products, p)
	}
	if len(products) == 0 {
		return nil, &Error{Message: "No valid products received from web service"}
	}
	return products, nil
}

// UploadAuditPayload posts one serialized audit.
func (c *Client) UploadAuditPayload(ctx context.Context, token, payload string) error {
	if token == "" {
		return &Error{Message: "Login required to send audit information"}
	}
	// TODO: send the token once the payload endpoint authenticates callers.
	_, err := c.call(ctx, http.MethodPost, "payload/v1/", []byte(payload), "audit", false)
	return err
}

// call runs one request and unwraps the envelope. With needData the data
// member must be an object or an array.
func (c *Client) call(ctx context.Context, method, endpoint string, body []byte, descr string, needData bool) (gjson.Result, error) {
	ctx, done, err := c.begin(ctx)
	if err != nil {
		return gjson.Result{}, err
	}
	defer done()

	log := c.logger.WithFields(logrus.Fields{"request": descr, "method": method})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return gjson.Result{}, &Error{Message: fmt.Sprintf("Failed to create %s request", descr), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info("request canceled")
			return gjson.Result{}, &Error{Message: "Request canceled", Err: context.Canceled}
		}
		log.WithError(err).Warn("request failed")
		return gjson.Result{}, &Error{Message: fmt.Sprintf("Unable to reach web service for %s request", descr), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return gjson.Result{}, &Error{Message: "Request canceled", Err: context.Canceled}
		}
		return gjson.Result{}, &Error{Message: unexpected(descr).Message, Err: err}
	}
	log.WithFields(logrus.Fields{"status": resp.StatusCode, "bytes": len(raw), "elapsed": time.Since(start)}).Debug("response received")

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, unexpected(descr)
	}
	return unwrap(raw, descr, needData)
}

func unwrap(raw []byte, descr string, needData bool) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, unexpected(descr)
	}
	env := gjson.ParseBytes(raw)
	if !env.IsObject() {
		return gjson.Result{}, unexpected(descr)
	}
	status := env.Get("status")
	if status.Type != gjson.String {
		return gjson.Result{}, unexpected(descr)
	}
	if status.String() != "success" {
		// message is optional; fall back to the status text.
		msg := status.String()
		if m := env.Get("message"); m.Type == gjson.String && m.String() != "" {
			msg = m.String()
		}
		return gjson.Result{}, &Error{Message: msg}
	}

	data := env.Get("data")
	if needData && !data.IsObject() && !data.IsArray() {
		return gjson.Result{}, unexpected(descr)
	}
	return data, nil
}
