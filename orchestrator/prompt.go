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

package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"reportpilot/platform/connectors/base"
	"reportpilot/platform/orchestrator/access"
	"reportpilot/platform/orchestrator/report"
)

// PromptBuilder produces the system prompt for one request.
type PromptBuilder interface {
	SystemPrompt(ctx context.Context, policy access.Policy) (string, error)
}

// DefaultPromptTemplate is used when no template is configured.
const DefaultPromptTemplate = `You are a reporting assistant for customer {{.CustomerID}}.
Build reports by exploring the data with the tools provided, then call finalize_report.
Ask a clarification question with ask_clarification when the request is ambiguous.

Tables available:
{{range .Tables}}- {{.Name}}{{if .Description}}: {{.Description}}{{end}}
{{end}}
Section types: {{.SectionTypes}}.
{{if not .IsAdmin}}
Never reveal or reference these restricted fields: {{.Restricted}}. If asked about them, say the data is not available.
{{end}}`

type promptData struct {
	CustomerID   string
	IsAdmin      bool
	Tables       []base.TableInfo
	SectionTypes string
	Restricted   string
}

// TemplatePrompt renders a text/template against the caller's visible tables.
type TemplatePrompt struct {
	tmpl *template.Template
	data base.DataSource
}

// NewTemplatePrompt parses text. An empty text selects DefaultPromptTemplate.
func NewTemplatePrompt(text string, data base.DataSource) (*TemplatePrompt, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &TemplatePrompt{tmpl: tmpl, data: data}, nil
}

// SystemPrompt implements PromptBuilder.
func (p *TemplatePrompt) SystemPrompt(ctx context.Context, policy access.Policy) (string, error) {
	d := promptData{
		CustomerID: policy.CustomerID,
		IsAdmin:    policy.IsAdmin,
		Restricted: strings.Join(policy.RestrictedFields, ", "),
	}
	if p.data != nil {
		tables, err := p.data.DiscoverTables(ctx, policy.Scope())
		if err != nil {
			return "", fmt.Errorf("discover tables: %w", err)
		}
		d.Tables = tables
	}

	d.SectionTypes = strings.Join(report.SectionTypes(), ", ")

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
