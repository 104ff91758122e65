package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/secopshq/survivault/internal/domain/entity"
	"github.com/secopshq/survivault/internal/domain/errors"
)

// Config contains configuration for the GitHub org client.
type Config struct {
	Org     string
	Token   string
	BaseURL string
	Timeout time.Duration
	// RateLimitRPS caps calls per organization. The authorization API is
	// a shared resource: every pass in the org funnels through one
	// limiter.
	RateLimitRPS int
	BurstSize    int
}

// Client is the engine's view of the external authorization system. Every
// operation is idempotent from the caller's side because the engine
// retries with at-least-once semantics across passes.
type Client struct {
	config      Config
	client      *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// Member is one org membership as reported by the API.
type Member struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Membership is the role/state detail for one member.
type Membership struct {
	Role  string `json:"role"`
	State string `json:"state"`
}

// Repo is one organization repository.
type Repo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.github.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 5
	}
	if config.BurstSize == 0 {
		config.BurstSize = config.RateLimitRPS * 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:      config,
		client:      &http.Client{Timeout: config.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.BurstSize),
		logger:      logger,
	}
}

// SetMembershipRole sets the org role of a principal.
func (c *Client) SetMembershipRole(ctx context.Context, principal string, role entity.Role) error {
	body := map[string]string{"role": role.String()}
	resp, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/orgs/%s/memberships/%s", c.config.Org, principal), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.statusError(resp, fmt.Sprintf("set role %s for %s", role, principal))
}

// RemoveMembership removes a principal from the org. An already absent
// member counts as success: a prior partial failure that actually landed
// externally must not be retried into an error.
func (c *Client) RemoveMembership(ctx context.Context, principal string) error {
	resp, err := c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/orgs/%s/members/%s", c.config.Org, principal), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.statusError(resp, fmt.Sprintf("remove membership of %s", principal))
}

// SetResourcePermission reduces a principal's permission on one repository
// to the given level. Re-applying a level that is already in place is a
// no-op on the GitHub side, which keeps cross-pass retries safe.
func (c *Client) SetResourcePermission(ctx context.Context, repoFullName, principal, permission string) error {
	body := map[string]string{"permission": permission}
	resp, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/repos/%s/collaborators/%s", repoFullName, principal), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.statusError(resp, fmt.Sprintf("set %s permission on %s for %s", permission, repoFullName, principal))
}

// ListMembers returns all members of the organization.
func (c *Client) ListMembers(ctx context.Context) ([]Member, error) {
	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/orgs/%s/members?per_page=100", c.config.Org), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "list members")
	}
	var members []Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, errors.NewTransportError("github", "decoding member list").WithCause(err)
	}
	return members, nil
}

// GetMembership returns role and state for one member.
func (c *Client) GetMembership(ctx context.Context, principal string) (*Membership, error) {
	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/orgs/%s/memberships/%s", c.config.Org, principal), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFoundError("membership")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, fmt.Sprintf("get membership of %s", principal))
	}
	var m Membership
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, errors.NewTransportError("github", "decoding membership").WithCause(err)
	}
	return &m, nil
}

// ListRepos returns the organization's repositories.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/orgs/%s/repos?per_page=100", c.config.Org), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "list repos")
	}
	var repos []Repo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, errors.NewTransportError("github", "decoding repo list").WithCause(err)
	}
	return repos, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, errors.NewTransportError("github", "rate limiter wait").WithCause(err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError("github", fmt.Sprintf("%s %s", method, path)).WithCause(err)
	}
	return resp, nil
}

// statusError maps a non-success HTTP status to the failure taxonomy:
// 401/403 mean the caller lacks rights and must not be retried blindly;
// everything else is treated as transient.
func (c *Client) statusError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := fmt.Sprintf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(raw))

	c.logger.Warn("github api error",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.NewAuthorizationDeniedError(detail)
	}
	return errors.NewTransportError("github", detail)
}
