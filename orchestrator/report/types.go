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

// Package report holds the report draft built up during one report request
// and the checks a draft must pass before it is returned.
package report

import (
	"time"

	"github.com/google/uuid"
)

// SectionType is the kind of visual block a section renders as.
type SectionType string

const (
	SectionHero         SectionType = "hero"
	SectionStatRow      SectionType = "stat-row"
	SectionCategoryGrid SectionType = "category-grid"
	SectionChart        SectionType = "chart"
	SectionTable        SectionType = "table"
	SectionHeader       SectionType = "header"
	SectionMap          SectionType = "map"
)

var allowedSections = map[SectionType]bool{
	SectionHero:         true,
	SectionStatRow:      true,
	SectionCategoryGrid: true,
	SectionChart:        true,
	SectionTable:        true,
	SectionHeader:       true,
	SectionMap:          true,
}

// Valid reports whether t is in the allow-list.
func (t SectionType) Valid() bool {
	return allowedSections[t]
}

// SectionTypes lists the allowed section types in display order.
func SectionTypes() []string {
	return []string{
		string(SectionHero), string(SectionStatRow), string(SectionCategoryGrid),
		string(SectionChart), string(SectionTable), string(SectionHeader), string(SectionMap),
	}
}

// DateRange bounds the data a report covers. Either a preset ("last_30_days")
// or explicit start/end dates.
type DateRange struct {
	Preset string `json:"preset,omitempty" mapstructure:"preset"`
	Start  string `json:"start,omitempty" mapstructure:"start"`
	End    string `json:"end,omitempty" mapstructure:"end"`
}

// Section is one block of a report.
type Section struct {
	Type    SectionType            `json:"type" mapstructure:"type"`
	Title   string                 `json:"title,omitempty" mapstructure:"title"`
	Config  map[string]interface{} `json:"config" mapstructure:"config"`
	Data    interface{}            `json:"data,omitempty" mapstructure:"data"`
	Insight string                 `json:"insight,omitempty" mapstructure:"insight"`
}

// Draft is the report being assembled for one request.
type Draft struct {
	ID          string    `json:"id" mapstructure:"id"`
	Name        string    `json:"name" mapstructure:"name"`
	Description string    `json:"description,omitempty" mapstructure:"description"`
	Theme       string    `json:"theme" mapstructure:"theme"`
	DateRange   DateRange `json:"dateRange" mapstructure:"dateRange"`
	Sections    []Section `json:"sections" mapstructure:"sections"`
	CreatedAt   time.Time `json:"createdAt" mapstructure:"-"`
	CustomerID  string    `json:"customerId" mapstructure:"-"`
}

// DefaultTheme is used when a draft is created without one.
const DefaultTheme = "default"

// NewDraft creates an empty draft owned by customerID.
func NewDraft(customerID, name, description, theme string, dateRange DateRange, now time.Time) *Draft {
	if theme == "" {
		theme = DefaultTheme
	}
	if dateRange == (DateRange{}) {
		dateRange = DateRange{Preset: "last_30_days"}
	}
	return &Draft{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Theme:       theme,
		DateRange:   dateRange,
		Sections:    []Section{},
		CreatedAt:   now.UTC(),
		CustomerID:  customerID,
	}
}

// Clone returns a copy whose section slice can be changed independently.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Sections = append([]Section(nil), d.Sections...)
	return &cp
}
