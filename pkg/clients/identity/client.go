package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/kdiawara/branchstock/internal/config"
	"github.com/kdiawara/branchstock/internal/domain/models"
)

// ErrUnauthenticated indicates the identity provider rejected the caller's
// token.
var ErrUnauthenticated = errors.New("identity provider rejected the token")

// Client exposes the identity/role provider operations used by the
// application.
type Client interface {
	Authenticate(ctx context.Context, token string) (*models.Principal, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an identity API client using the provided configuration
// values.
func NewClient(cfg config.IdentityConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &APIClient{httpClient: restyClient}
}

// introspectResponse mirrors the identity provider's token introspection
// payload.
type introspectResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Branch string `json:"branch"`
}

// apiError represents an identity provider error payload.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Authenticate verifies the bearer token and resolves the caller's principal.
func (c *APIClient) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	result := new(introspectResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", token)).
		SetResult(result).
		SetError(apiErr).
		Post("/v1/introspect")
	if err != nil {
		return nil, fmt.Errorf("introspect token: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode() >= http.StatusBadRequest:
		return nil, fmt.Errorf("identity api error: code=%d, message=%s", resp.StatusCode(), apiErr.Error.Message)
	}

	if result.UserID == "" {
		return nil, ErrUnauthenticated
	}

	return &models.Principal{
		UserID: result.UserID,
		Name:   result.Name,
		Email:  result.Email,
		Role:   models.Role(result.Role),
		Branch: result.Branch,
	}, nil
}
