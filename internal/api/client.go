// Package api is a client for the management portal's REST API: token
// exchange plus generic resource CRUD with the portal's idToken header
// convention. Mutating calls honour a dry-run mode in which the intended
// request is logged and nothing is sent.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// API paths, relative to the portal host.
const (
	PathAuthentication = "/api/v1/authentication"
	PathUsers          = "/api/v1/users"
	PathTeams          = "/api/v1/teams"
	PathAccessRoles    = "/api/v1/accessRoles"
	PathPolicies       = "/api/v1/policies"
	PathApplications   = "/api/v1/applications"
	PathNetworks       = "/api/v1/networks"

	PathRegisteredDevice = "/api/v2/registered-device"
)

// Resource is a portal object in wire form. The portal's schemas vary per
// endpoint and the sample flows only ever touch a handful of fields, so
// resources stay schemaless and are addressed by key.
type Resource = map[string]any

// Client talks to the management portal.
type Client struct {
	rest   *resty.Client
	host   string
	token  string
	dryRun bool
}

// Option configures a Client.
type Option func(*Client)

// WithDryRun makes update and delete operations log instead of send.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) { c.dryRun = dryRun }
}

// New returns a Client for the given portal host (scheme included).
func New(host string, opts ...Option) *Client {
	c := &Client{
		rest: resty.New().
			SetBaseURL(strings.TrimRight(host, "/")).
			SetTimeout(30 * time.Second).
			SetAllowMethodDeletePayload(true).
			SetHeader("Content-Type", "application/json"),
		host: strings.TrimRight(host, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying transport.
func (c *Client) Close() error { return c.rest.Close() }

// Host returns the portal host the client was built for.
func (c *Client) Host() string { return c.host }

// DryRun reports whether mutations are suppressed.
func (c *Client) DryRun() bool { return c.dryRun }

// Authenticate exchanges the API key pair for an idToken used by all
// subsequent calls.
func (c *Client) Authenticate(ctx context.Context, apiKey, apiSecret string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"apiKey": apiKey, "apiSecret": apiSecret}).
		Post(PathAuthentication)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	var out struct {
		Authorization string `json:"Authorization"`
	}
	if err := json.Unmarshal(resp.Bytes(), &out); err != nil {
		return fmt.Errorf("token exchange: decode response: %w", err)
	}
	if resp.StatusCode() >= 400 || out.Authorization == "" {
		return fmt.Errorf("token exchange failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.token = out.Authorization
	return nil
}

// Token returns the idToken acquired by Authenticate.
func (c *Client) Token() string { return c.token }

// BearerToken returns the idToken with exactly one "Bearer " prefix, the
// form the GraphQL endpoints expect.
func (c *Client) BearerToken() string {
	if strings.HasPrefix(c.token, "Bearer ") {
		return c.token
	}
	return "Bearer " + c.token
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rest.R().
		SetContext(ctx).
		SetHeader("idToken", c.token).
		SetHeader("X-Request-Id", uuid.NewString())
}

// checkResponse turns HTTP errors and portal-level error envelopes into a
// Go error. The portal reports failures both ways.
func checkResponse(resp *resty.Response, method, path string) ([]byte, error) {
	body := resp.Bytes()

	var envelope struct {
		Error any `json:"error"`
	}
	// Non-object bodies (arrays, bare status) simply have no envelope.
	_ = json.Unmarshal(body, &envelope)

	if resp.StatusCode() >= 400 || envelope.Error != nil {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), string(body))
	}
	return body, nil
}

// Create POSTs a new resource and returns the created object.
func (c *Client) Create(ctx context.Context, path string, data any) (Resource, error) {
	ctxlog.FromContext(ctx).Debug("create resource", "path", path)

	resp, err := c.request(ctx).SetBody(data).Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	body, err := checkResponse(resp, "POST", path)
	if err != nil {
		return nil, err
	}

	var out Resource
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return out, nil
}

// Get reads a single resource by id.
func (c *Client) Get(ctx context.Context, path, id string) (Resource, error) {
	full := path + "/" + url.PathEscape(id)
	ctxlog.FromContext(ctx).Debug("read resource", "path", path, "id", id)

	resp, err := c.request(ctx).Get(full)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", full, err)
	}
	body, err := checkResponse(resp, "GET", full)
	if err != nil {
		return nil, err
	}

	var out Resource
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("GET %s: decode response: %w", full, err)
	}
	return out, nil
}

// List reads every resource under a collection path.
func (c *Client) List(ctx context.Context, path string) ([]Resource, error) {
	ctxlog.FromContext(ctx).Debug("list resources", "path", path)

	resp, err := c.request(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	body, err := checkResponse(resp, "GET", path)
	if err != nil {
		return nil, err
	}

	var out []Resource
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return out, nil
}

// Update PUTs a changed resource. The id key is stripped from the body,
// matching the portal's update contract. In dry-run mode the intended
// update is logged and no request is sent.
func (c *Client) Update(ctx context.Context, path, id string, data Resource) error {
	logger := ctxlog.FromContext(ctx)

	var body Resource
	if data != nil {
		body = make(Resource, len(data))
		for k, v := range data {
			if k == "id" {
				continue
			}
			body[k] = v
		}
	}

	if c.dryRun {
		logger.Warn("dry run: would update", "path", path, "id", id)
		return nil
	}

	full := path + "/" + url.PathEscape(id)
	req := c.request(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Put(full)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", full, err)
	}
	if _, err := checkResponse(resp, "PUT", full); err != nil {
		return err
	}
	return nil
}

// Delete removes a resource, optionally sending a body (the relationship
// endpoints take the member ids to unlink). In dry-run mode the intended
// delete is logged and no request is sent.
func (c *Client) Delete(ctx context.Context, path, id string, body any) error {
	logger := ctxlog.FromContext(ctx)

	if c.dryRun {
		logger.Warn("dry run: would delete", "path", path, "id", id)
		return nil
	}

	full := path + "/" + url.PathEscape(id)
	req := c.request(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Delete(full)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", full, err)
	}
	if _, err := checkResponse(resp, "DELETE", full); err != nil {
		return err
	}
	return nil
}

// UpdateRegisteredDevice PUTs a device's tag (v2 endpoint, Bearer auth).
func (c *Client) UpdateRegisteredDevice(ctx context.Context, id, deviceTag string) error {
	logger := ctxlog.FromContext(ctx)

	if c.dryRun {
		logger.Warn("dry run: would update device tag", "device", id, "tag", deviceTag)
		return nil
	}

	full := PathRegisteredDevice + "/" + url.PathEscape(id)
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Authorization", c.BearerToken()).
		SetHeader("Idtoken", c.token).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetBody(map[string]string{"deviceTag": deviceTag}).
		Put(full)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", full, err)
	}
	if _, err := checkResponse(resp, "PUT", full); err != nil {
		return err
	}
	return nil
}
