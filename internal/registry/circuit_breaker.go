// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/logging"
	"github.com/tomtom215/regsync/internal/metrics"
)

// BreakerName labels the registry breaker in logs and metrics.
const BreakerName = "global-registry"

// CircuitBreakerClient wraps a Registry with the circuit breaker pattern so a
// failing registry sheds load instead of tying up every queue worker.
//
// Not-found and conflict responses are answers, not failures, and do not
// count towards tripping the breaker. Neither does caller cancellation.
type CircuitBreakerClient struct {
	next Registry
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// Ensure CircuitBreakerClient implements Registry
var _ Registry = (*CircuitBreakerClient)(nil)

// NewCircuitBreakerClient wraps next with a breaker configured from cfg.
func NewCircuitBreakerClient(next Registry, cfg config.BreakerConfig) *CircuitBreakerClient {
	name := BreakerName

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	minRequests := cfg.MinRequests
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrConflict) ||
				errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{next: next, cb: cb, name: name}
}

// State returns the current breaker state.
func (cbc *CircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

// execute runs fn through the breaker. Rejections are reported as transport errors.
func (cbc *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		if IsTransport(err) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return result, nil
}

// castResult type-checks a breaker result.
func castResult[T any](result any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func (cbc *CircuitBreakerClient) FindEntityTypes(ctx context.Context, name, parentID string) ([]EntityType, error) {
	return castResult[[]EntityType](cbc.execute(func() (any, error) {
		return cbc.next.FindEntityTypes(ctx, name, parentID)
	}))
}

func (cbc *CircuitBreakerClient) CreateEntityType(ctx context.Context, in NewEntityType) (*EntityType, error) {
	return castResult[*EntityType](cbc.execute(func() (any, error) {
		return cbc.next.CreateEntityType(ctx, in)
	}))
}

func (cbc *CircuitBreakerClient) RenameEntityType(ctx context.Context, id, name string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.next.RenameEntityType(ctx, id, name)
	})
	return err
}

func (cbc *CircuitBreakerClient) CreateEntity(ctx context.Context, body Document) (Document, error) {
	return castResult[Document](cbc.execute(func() (any, error) {
		return cbc.next.CreateEntity(ctx, body)
	}))
}

func (cbc *CircuitBreakerClient) UpdateEntity(ctx context.Context, id string, body Document, query url.Values) (Document, error) {
	return castResult[Document](cbc.execute(func() (any, error) {
		return cbc.next.UpdateEntity(ctx, id, body, query)
	}))
}

func (cbc *CircuitBreakerClient) GetEntity(ctx context.Context, id string, query url.Values) (Document, error) {
	return castResult[Document](cbc.execute(func() (any, error) {
		return cbc.next.GetEntity(ctx, id, query)
	}))
}

func (cbc *CircuitBreakerClient) DeleteEntity(ctx context.Context, id string) error {
	_, err := cbc.execute(func() (any, error) {
		return nil, cbc.next.DeleteEntity(ctx, id)
	})
	return err
}

func (cbc *CircuitBreakerClient) FindRelationshipTypes(ctx context.Context, entityType1ID, entityType2ID string) ([]RelationshipType, error) {
	return castResult[[]RelationshipType](cbc.execute(func() (any, error) {
		return cbc.next.FindRelationshipTypes(ctx, entityType1ID, entityType2ID)
	}))
}

func (cbc *CircuitBreakerClient) CreateRelationshipType(ctx context.Context, in NewRelationshipType) (*RelationshipType, error) {
	return castResult[*RelationshipType](cbc.execute(func() (any, error) {
		return cbc.next.CreateRelationshipType(ctx, in)
	}))
}

func (cbc *CircuitBreakerClient) AddRelationshipTypeFields(ctx context.Context, id string, fields []Field) (*RelationshipType, error) {
	return castResult[*RelationshipType](cbc.execute(func() (any, error) {
		return cbc.next.AddRelationshipTypeFields(ctx, id, fields)
	}))
}

// New builds the registry transport described by cfg, with the breaker when enabled.
func New(cfg *config.RegistryConfig, opts ...Option) Registry {
	client := NewClient(cfg, opts...)
	if !cfg.Breaker.Enabled {
		return client
	}
	return NewCircuitBreakerClient(client, cfg.Breaker)
}
