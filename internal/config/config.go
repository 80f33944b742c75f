// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the settings of a dispatch server from YAML.
//
// Every section is optional; missing values keep their defaults. An
// example:
//
//	manager:
//	  subscribe-timeout: 5s
//	  unsubscribe-timeout: 5s
//	  cleanup-interval: 30s
//	publisher:
//	  capacity: 1024
//	  strategy: drop-oldest
//	  block-timeout: 0s
//	batch:
//	  max-items: 100
//	  max-concurrency: 10
//	rate-limit:
//	  rate: 50
//	  burst: 100
//	calls:
//	  timeout: 30s
//	cache:
//	  ttl: 2s
//	  size: 1024
//	auth:
//	  roles: [publisher]
//	  tokens:
//	    s3cret:
//	      name: ci
//	      roles: [publisher]
package config

import (
	"os"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/juju/dispatch/internal/subscriptionmanager"
	"github.com/juju/dispatch/pubsub"
	"github.com/juju/dispatch/rpc/batch"
	"github.com/juju/dispatch/rpc/middleware"
)

// DefaultCallTimeout bounds queries and mutations when calls.timeout is
// not set.
const DefaultCallTimeout = 30 * time.Second

// Config holds the settings of every component.
type Config struct {
	Manager   ManagerConfig   `yaml:"manager"`
	Publisher PublisherConfig `yaml:"publisher"`
	Batch     BatchConfig     `yaml:"batch"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Calls     CallsConfig     `yaml:"calls"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ManagerConfig holds the subscription manager settings.
type ManagerConfig struct {
	SubscribeTimeout   time.Duration `yaml:"subscribe-timeout"`
	UnsubscribeTimeout time.Duration `yaml:"unsubscribe-timeout"`
	CleanupInterval    time.Duration `yaml:"cleanup-interval"`
}

// PublisherConfig holds the settings of every event publisher.
type PublisherConfig struct {
	Capacity     int           `yaml:"capacity"`
	Strategy     string        `yaml:"strategy"`
	BlockTimeout time.Duration `yaml:"block-timeout"`
}

// BatchConfig holds the batch executor limits.
type BatchConfig struct {
	MaxItems       int `yaml:"max-items"`
	MaxConcurrency int `yaml:"max-concurrency"`
}

// RateLimitConfig holds the call rate limit. A zero rate disables it.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int64   `yaml:"burst"`
}

// Enabled reports whether calls are rate limited.
func (c RateLimitConfig) Enabled() bool {
	return c.Rate > 0
}

// CallsConfig holds the limits of queries and mutations. A zero timeout
// disables it.
type CallsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds the query cache settings. A zero TTL disables it.
type CacheConfig struct {
	TTL  time.Duration `yaml:"ttl"`
	Size int           `yaml:"size"`
}

// Enabled reports whether query results are cached.
func (c CacheConfig) Enabled() bool {
	return c.TTL > 0
}

// AuthConfig holds the static credentials guarding the events
// procedures. Without tokens they are open to every caller.
type AuthConfig struct {
	// Tokens maps a bearer token to the identity it authenticates.
	Tokens map[string]IdentityConfig `yaml:"tokens"`

	// Roles, if set, are the roles of which a caller needs at least one.
	Roles []string `yaml:"roles"`
}

// IdentityConfig describes the caller behind a token.
type IdentityConfig struct {
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// Enabled reports whether callers must authenticate.
func (c AuthConfig) Enabled() bool {
	return len(c.Tokens) > 0
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Manager: ManagerConfig{
			SubscribeTimeout:   subscriptionmanager.DefaultSubscribeTimeout,
			UnsubscribeTimeout: subscriptionmanager.DefaultUnsubscribeTimeout,
			CleanupInterval:    subscriptionmanager.DefaultCleanupInterval,
		},
		Publisher: PublisherConfig{
			Capacity: pubsub.DefaultCapacity,
			Strategy: pubsub.DropOldest.String(),
		},
		Batch: BatchConfig{
			MaxItems:       batch.DefaultMaxItems,
			MaxConcurrency: batch.DefaultMaxConcurrency,
		},
		Calls: CallsConfig{
			Timeout: DefaultCallTimeout,
		},
		Cache: CacheConfig{
			Size: middleware.DefaultCacheSize,
		},
	}
}

// Parse reads YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Annotate(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Read parses the file at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, errors.NotFoundf("config file %q", path)
	} else if err != nil {
		return Config{}, errors.Annotatef(err, "reading config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "config %q", path)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.SubscriptionManager().Validate(); err != nil {
		return errors.Annotate(err, "manager")
	}
	pub, err := c.PublisherConfig()
	if err != nil {
		return errors.Annotate(err, "publisher")
	}
	if err := pub.Validate(); err != nil {
		return errors.Annotate(err, "publisher")
	}
	if c.Batch.MaxItems <= 0 {
		return errors.NotValidf("batch max-items %d", c.Batch.MaxItems)
	}
	if c.Batch.MaxConcurrency <= 0 {
		return errors.NotValidf("batch max-concurrency %d", c.Batch.MaxConcurrency)
	}
	if c.RateLimit.Rate < 0 {
		return errors.NotValidf("negative rate-limit rate")
	}
	if c.RateLimit.Enabled() {
		if err := c.RateLimiter().Validate(); err != nil {
			return errors.Annotate(err, "rate-limit")
		}
	}
	if c.Calls.Timeout < 0 {
		return errors.NotValidf("negative calls timeout")
	}
	if c.Cache.TTL < 0 {
		return errors.NotValidf("negative cache ttl")
	}
	if c.Cache.Enabled() {
		if err := c.QueryCache().Validate(); err != nil {
			return errors.Annotate(err, "cache")
		}
	}
	if len(c.Auth.Roles) > 0 && !c.Auth.Enabled() {
		return errors.NotValidf("auth roles without tokens")
	}
	for _, id := range c.Auth.Tokens {
		if id.Name == "" {
			return errors.NotValidf("auth token with empty name")
		}
	}
	return nil
}

// SubscriptionManager returns the manager configuration, using the wall
// clock and the package logger.
func (c Config) SubscriptionManager() subscriptionmanager.Config {
	cfg := subscriptionmanager.DefaultConfig()
	cfg.SubscribeTimeout = c.Manager.SubscribeTimeout
	cfg.UnsubscribeTimeout = c.Manager.UnsubscribeTimeout
	cfg.CleanupInterval = c.Manager.CleanupInterval
	return cfg
}

// PublisherConfig returns the publisher configuration.
func (c Config) PublisherConfig() (pubsub.Config, error) {
	strategy, err := pubsub.ParseStrategy(c.Publisher.Strategy)
	if err != nil {
		return pubsub.Config{}, errors.Trace(err)
	}
	return pubsub.Config{
		Capacity:     c.Publisher.Capacity,
		Strategy:     strategy,
		BlockTimeout: c.Publisher.BlockTimeout,
	}, nil
}

// BatchExecutor returns the executor configuration for caller.
func (c Config) BatchExecutor(caller batch.Caller) batch.Config {
	return batch.Config{
		Caller:         caller,
		MaxItems:       c.Batch.MaxItems,
		MaxConcurrency: c.Batch.MaxConcurrency,
	}
}

// RateLimiter returns the rate limit middleware configuration.
func (c Config) RateLimiter() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rate:  c.RateLimit.Rate,
		Burst: c.RateLimit.Burst,
	}
}

// QueryCache returns the cache middleware configuration.
func (c Config) QueryCache() middleware.CacheConfig {
	return middleware.CacheConfig{
		TTL:  c.Cache.TTL,
		Size: c.Cache.Size,
	}
}

// Authenticator returns the configured tokens as an authenticator.
func (c Config) Authenticator() middleware.Tokens {
	tokens := make(middleware.Tokens, len(c.Auth.Tokens))
	for token, id := range c.Auth.Tokens {
		tokens[token] = middleware.Identity{
			Name:  id.Name,
			Roles: set.NewStrings(id.Roles...),
		}
	}
	return tokens
}
