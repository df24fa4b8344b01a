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

package cost

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelPricing contains pricing per million tokens for a model
type ModelPricing struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// Cost returns the USD cost of a call with the given token counts.
func (m ModelPricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*m.InputPerMillion + float64(outputTokens)/1e6*m.OutputPerMillion
}

// SonnetPricing is the default rate card ($3/M input, $15/M output).
var SonnetPricing = ModelPricing{InputPerMillion: 3, OutputPerMillion: 15}

// PricingConfig holds pricing for the providers the service can call.
// "*" is the per-provider fallback.
type PricingConfig struct {
	Providers map[string]map[string]ModelPricing `yaml:"providers"`
	mu        sync.RWMutex
}

func defaultProviders() map[string]map[string]ModelPricing {
	return map[string]map[string]ModelPricing{
		"anthropic": {
			"claude-opus-4":            {InputPerMillion: 15, OutputPerMillion: 75},
			"claude-sonnet-4":          SonnetPricing,
			"claude-sonnet-4-20250514": SonnetPricing,
			"claude-3-5-sonnet":        SonnetPricing,
			"claude-3-5-haiku":         {InputPerMillion: 0.8, OutputPerMillion: 4},
			"*":                        SonnetPricing,
		},
		"bedrock": {
			"anthropic.claude-3-5-sonnet-20241022-v2:0": SonnetPricing,
			"anthropic.claude-3-haiku-20240307-v1:0":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
			"*": SonnetPricing,
		},
	}
}

// NewPricingConfig creates a new pricing configuration with defaults
func NewPricingConfig() *PricingConfig {
	return &PricingConfig{Providers: defaultProviders()}
}

// LoadPricingFromFile merges a YAML rate card over the defaults.
func LoadPricingFromFile(path string) (*PricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}

	var custom struct {
		Providers map[string]map[string]ModelPricing `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &custom); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}

	config := NewPricingConfig()
	for provider, models := range custom.Providers {
		for model, pricing := range models {
			config.SetModelPricing(provider, model, pricing)
		}
	}
	return config, nil
}

// GetModelPricing returns pricing for a specific model, falling back to the
// provider wildcard.
func (p *PricingConfig) GetModelPricing(provider, model string) (ModelPricing, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	providerPricing, ok := p.Providers[strings.ToLower(provider)]
	if !ok {
		return ModelPricing{}, false
	}

	if pricing, ok := providerPricing[model]; ok {
		return pricing, true
	}
	if pricing, ok := providerPricing[strings.ToLower(model)]; ok {
		return pricing, true
	}
	pricing, ok := providerPricing["*"]
	return pricing, ok
}

// SetModelPricing sets pricing for a specific model
func (p *PricingConfig) SetModelPricing(provider, model string, pricing ModelPricing) {
	p.mu.Lock()
	defer p.mu.Unlock()

	provider = strings.ToLower(provider)
	if p.Providers[provider] == nil {
		p.Providers[provider] = make(map[string]ModelPricing)
	}
	p.Providers[provider][model] = pricing
}

// CalculateCost calculates the cost for a call based on tokens and model.
// Unknown providers cost nothing.
func (p *PricingConfig) CalculateCost(provider, model string, tokensIn, tokensOut int) float64 {
	pricing, ok := p.GetModelPricing(provider, model)
	if !ok {
		return 0
	}
	return pricing.Cost(tokensIn, tokensOut)
}
