// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/regsync/internal/logging"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return formatValidationError(err)
	}

	if err := c.validateRegistry(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateBindings(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateRegistry validates the registry endpoint.
func (c *Config) validateRegistry() error {
	if err := validateHTTPURL(c.Registry.BaseURL); err != nil {
		return fmt.Errorf("REGISTRY_BASE_URL is invalid: %w", err)
	}
	return nil
}

// validateQueue validates backend specific queue settings.
func (c *Config) validateQueue() error {
	if c.Queue.Topic == c.Queue.DeadLetterTopic {
		return fmt.Errorf("queue.dead_letter_topic must differ from queue.topic")
	}
	if c.Queue.Backend != "nats" {
		return nil
	}
	if c.Queue.NATS.Stream == "" {
		return fmt.Errorf("queue.nats.stream is required when QUEUE_BACKEND=nats")
	}
	if c.Queue.NATS.Embedded && c.Queue.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	if !c.Queue.NATS.Embedded && c.Queue.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when QUEUE_BACKEND=nats")
	}
	if c.Queue.NATS.SubscribersCount < 1 {
		return fmt.Errorf("NATS_SUBSCRIBERS must be at least 1")
	}
	return nil
}

// validateBindings rejects duplicate kinds. Descriptor level checks happen
// when the bindings are registered.
func (c *Config) validateBindings() error {
	seen := make(map[string]struct{}, len(c.Bindings))
	for i := range c.Bindings {
		b := &c.Bindings[i]
		if _, dup := seen[b.Kind]; dup {
			return fmt.Errorf("bindings[%d]: kind %q declared twice", i, b.Kind)
		}
		seen[b.Kind] = struct{}{}
		if b.Entity == nil && len(b.Relationships) == 0 {
			return fmt.Errorf("bindings[%d]: kind %q declares neither an entity nor relationships", i, b.Kind)
		}
	}
	return nil
}

// validateLogging validates the log level.
func (c *Config) validateLogging() error {
	if c.Logging.Level == "" {
		return nil
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, disabled")
	}
	return nil
}

// validateHTTPURL validates that a URL is well-formed with an http(s) scheme.
func validateHTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// formatValidationError flattens validator errors into one message naming
// the offending koanf paths.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
