// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package registry is the HTTP/JSON transport to the Global Registry.
//
// It knows the registry's resources (entity types, entities, relationship
// types) and maps response statuses onto sentinel errors. It does not know
// about local records; the synchronizers build the entity bodies.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
)

// Registry is the set of registry operations the synchronizers use.
// Both Client and CircuitBreakerClient implement it.
type Registry interface {
	FindEntityTypes(ctx context.Context, name, parentID string) ([]EntityType, error)
	CreateEntityType(ctx context.Context, in NewEntityType) (*EntityType, error)
	RenameEntityType(ctx context.Context, id, name string) error

	CreateEntity(ctx context.Context, body Document) (Document, error)
	UpdateEntity(ctx context.Context, id string, body Document, query url.Values) (Document, error)
	GetEntity(ctx context.Context, id string, query url.Values) (Document, error)
	DeleteEntity(ctx context.Context, id string) error

	FindRelationshipTypes(ctx context.Context, entityType1ID, entityType2ID string) ([]RelationshipType, error)
	CreateRelationshipType(ctx context.Context, in NewRelationshipType) (*RelationshipType, error)
	AddRelationshipTypeFields(ctx context.Context, id string, fields []Field) (*RelationshipType, error)
}

// Ensure Client implements Registry
var _ Registry = (*Client)(nil)

// Client talks to the registry REST API.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a registry client from configuration.
func NewClient(cfg *config.RegistryConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindEntityTypes lists entity types by name under an optional parent type.
func (c *Client) FindEntityTypes(ctx context.Context, name, parentID string) ([]EntityType, error) {
	q := url.Values{}
	q.Set("filters[name]", name)
	if parentID != "" {
		q.Set("filters[parent_id]", parentID)
	}
	var out struct {
		EntityTypes []EntityType `json:"entity_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/entity_types", q, nil, &out); err != nil {
		return nil, err
	}
	return out.EntityTypes, nil
}

// CreateEntityType creates an entity type, or a field when ParentID is a type id.
func (c *Client) CreateEntityType(ctx context.Context, in NewEntityType) (*EntityType, error) {
	var out struct {
		EntityType *EntityType `json:"entity_type"`
	}
	body := map[string]any{"entity_type": in}
	if err := c.do(ctx, http.MethodPost, "/entity_types", nil, body, &out); err != nil {
		return nil, err
	}
	if out.EntityType == nil {
		return nil, fmt.Errorf("%w: create entity type %s: empty response", ErrTransport, in.Name)
	}
	return out.EntityType, nil
}

// RenameEntityType renames an entity type.
func (c *Client) RenameEntityType(ctx context.Context, id, name string) error {
	body := map[string]any{"entity_type": map[string]any{"id": id, "name": name}}
	return c.do(ctx, http.MethodPut, "/entity_types/"+url.PathEscape(id), nil, body, nil)
}

// CreateEntity posts a new entity. body is {entity: {<type>: {...}}}.
func (c *Client) CreateEntity(ctx context.Context, body Document) (Document, error) {
	var out Document
	if err := c.do(ctx, http.MethodPost, "/entities", nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEntity puts an entity body to an existing entity id.
func (c *Client) UpdateEntity(ctx context.Context, id string, body Document, query url.Values) (Document, error) {
	var out Document
	if err := c.do(ctx, http.MethodPut, "/entities/"+url.PathEscape(id), query, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEntity fetches one entity.
func (c *Client) GetEntity(ctx context.Context, id string, query url.Values) (Document, error) {
	var out Document
	if err := c.do(ctx, http.MethodGet, "/entities/"+url.PathEscape(id), query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEntity deletes an entity or relationship edge.
func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/entities/"+url.PathEscape(id), nil, nil, nil)
}

// FindRelationshipTypes lists relationship types between two entity types.
func (c *Client) FindRelationshipTypes(ctx context.Context, entityType1ID, entityType2ID string) ([]RelationshipType, error) {
	q := url.Values{}
	q.Set("filters[between]", entityType1ID+","+entityType2ID)
	var out struct {
		RelationshipTypes []RelationshipType `json:"relationship_types"`
	}
	if err := c.do(ctx, http.MethodGet, "/relationship_types", q, nil, &out); err != nil {
		return nil, err
	}
	return out.RelationshipTypes, nil
}

// CreateRelationshipType creates a relationship type.
func (c *Client) CreateRelationshipType(ctx context.Context, in NewRelationshipType) (*RelationshipType, error) {
	var out struct {
		RelationshipType *RelationshipType `json:"relationship_type"`
	}
	body := map[string]any{"relationship_type": in}
	if err := c.do(ctx, http.MethodPost, "/relationship_types", nil, body, &out); err != nil {
		return nil, err
	}
	if out.RelationshipType == nil {
		return nil, fmt.Errorf("%w: create relationship type %s: empty response", ErrTransport, in.Relationship1)
	}
	return out.RelationshipType, nil
}

// AddRelationshipTypeFields adds fields to a relationship type and returns
// the updated type.
func (c *Client) AddRelationshipTypeFields(ctx context.Context, id string, fields []Field) (*RelationshipType, error) {
	var out struct {
		RelationshipType *RelationshipType `json:"relationship_type"`
	}
	body := map[string]any{"relationship_type": map[string]any{"fields": fields}}
	if err := c.do(ctx, http.MethodPut, "/relationship_types/"+url.PathEscape(id), nil, body, &out); err != nil {
		return nil, err
	}
	return out.RelationshipType, nil
}

// do performs one request. A non-nil out is decoded from a 2xx body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	op := method + " " + path
	resource := resourceOf(path)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: rate limiter: %w", ErrTransport, op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRegistryRequest(method, resource, 0, time.Since(start))
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordRegistryRequest(method, resource, resp.StatusCode, time.Since(start))

	logging.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("registry request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			data = []byte("(failed to read body)")
		}
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode %s response: %w", ErrTransport, op, err)
	}
	return nil
}

// resourceOf returns the first path segment, used as a low-cardinality metric label.
func resourceOf(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
