// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"reportpilot/platform/shared/logger"
)

// SecretsManager resolves a secret reference to its key/value contents.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// GetSecretValueAPI is the slice of the Secrets Manager client used here.
type GetSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager,
// caching each secret for a TTL.
type AWSSecretsManager struct {
	client GetSecretValueAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	// Client replaces the SDK client, for tests.
	Client GetSecretValueAPI
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	client := opts.Client
	if client == nil {
		cfgOpts := []func(*awsconfig.LoadOptions) error{}
		if opts.Region != "" {
			cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = secretsmanager.NewFromConfig(cfg)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
		log:    logger.New("secrets-manager"),
	}, nil
}

// GetSecret retrieves a secret. JSON object secrets are returned as-is; any
// other string is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	var credentials map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &credentials); err != nil {
		credentials = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{value: credentials, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Info("", "", "secret fetched and cached", map[string]interface{}{
		"secret": maskARN(secretARN),
	})
	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// EnvSecretsManager reads secrets from environment variables. The secret
// reference is an env var prefix: "ANTHROPIC" yields ANTHROPIC_API_KEY as
// "api_key".
type EnvSecretsManager struct{}

// NewEnvSecretsManager creates a secrets manager that reads from environment variables
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

var envSecretFields = []string{"API_KEY", "TOKEN", "USERNAME", "PASSWORD", "SECRET_KEY"}

// GetSecret implements SecretsManager.
func (s *EnvSecretsManager) GetSecret(_ context.Context, prefix string) (map[string]string, error) {
	credentials := make(map[string]string)
	for _, field := range envSecretFields {
		if value := os.Getenv(prefix + "_" + field); value != "" {
			credentials[strings.ToLower(field)] = value
		}
	}
	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", prefix)
	}
	return credentials, nil
}

// ResolveAPIKey returns the API key stored in a secret, looking at
// "api_key", "ANTHROPIC_API_KEY" and "value" in that order.
func ResolveAPIKey(ctx context.Context, sm SecretsManager, secretARN string) (string, error) {
	secret, err := sm.GetSecret(ctx, secretARN)
	if err != nil {
		return "", err
	}
	for _, k := range []string{"api_key", "ANTHROPIC_API_KEY", "value"} {
		if v := strings.TrimSpace(secret[k]); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("secret %s has no api key", maskARN(secretARN))
}
