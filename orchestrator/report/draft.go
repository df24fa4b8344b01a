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

package report

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSectionIndex is returned for an index outside the section list.
var ErrSectionIndex = errors.New("section index out of range")

// ErrBadOrder is returned when a reorder is not a permutation of the sections.
var ErrBadOrder = errors.New("order must list every section index exactly once")

// AddSection appends s, or inserts it at position when 0 <= position < len.
// It returns the index the section ended up at.
func (d *Draft) AddSection(s Section, position int) (int, error) {
	if !s.Type.Valid() {
		return -1, fmt.Errorf("invalid section type %q (allowed: %s)", s.Type, strings.Join(SectionTypes(), ", "))
	}
	if s.Config == nil {
		s.Config = map[string]interface{}{}
	}
	if position < 0 || position >= len(d.Sections) {
		d.Sections = append(d.Sections, s)
		return len(d.Sections) - 1, nil
	}
	d.Sections = append(d.Sections, Section{})
	copy(d.Sections[position+1:], d.Sections[position:])
	d.Sections[position] = s
	return position, nil
}

// SectionPatch holds the fields of a section to change. Nil means unchanged.
// Config keys are merged; a nil value deletes the key.
type SectionPatch struct {
	Type    *SectionType
	Title   *string
	Config  map[string]interface{}
	Insight *string
}

// ModifySection applies patch to the section at index.
func (d *Draft) ModifySection(index int, patch SectionPatch) error {
	if index < 0 || index >= len(d.Sections) {
		return fmt.Errorf("%w: %d (have %d)", ErrSectionIndex, index, len(d.Sections))
	}
	s := d.Sections[index]
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return fmt.Errorf("invalid section type %q", *patch.Type)
		}
		s.Type = *patch.Type
	}
	if patch.Title != nil {
		s.Title = *patch.Title
	}
	if patch.Insight != nil {
		s.Insight = *patch.Insight
	}
	if len(patch.Config) > 0 {
		merged := make(map[string]interface{}, len(s.Config)+len(patch.Config))
		for k, v := range s.Config {
			merged[k] = v
		}
		for k, v := range patch.Config {
			if v == nil {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		s.Config = merged
		// Data computed for the old config no longer matches it.
		s.Data = nil
	}
	d.Sections[index] = s
	return nil
}

// RemoveSection deletes the section at index and returns it.
func (d *Draft) RemoveSection(index int) (Section, error) {
	if index < 0 || index >= len(d.Sections) {
		return Section{}, fmt.Errorf("%w: %d (have %d)", ErrSectionIndex, index, len(d.Sections))
	}
	removed := d.Sections[index]
	d.Sections = append(d.Sections[:index], d.Sections[index+1:]...)
	return removed, nil
}

// ReorderSections rearranges sections so that new position i holds the
// section previously at order[i].
func (d *Draft) ReorderSections(order []int) error {
	if len(order) != len(d.Sections) {
		return fmt.Errorf("%w: got %d indexes for %d sections", ErrBadOrder, len(order), len(d.Sections))
	}
	seen := make([]bool, len(order))
	next := make([]Section, len(order))
	for i, from := range order {
		if from < 0 || from >= len(order) || seen[from] {
			return fmt.Errorf("%w: bad index %d", ErrBadOrder, from)
		}
		seen[from] = true
		next[i] = d.Sections[from]
	}
	d.Sections = next
	return nil
}

// SectionSummary is the compact view of a section returned by previews.
type SectionSummary struct {
	Index      int         `json:"index"`
	Type       SectionType `json:"type"`
	Title      string      `json:"title,omitempty"`
	HasData    bool        `json:"hasData"`
	HasInsight bool        `json:"hasInsight"`
	Fields     []string    `json:"fields,omitempty"`
}

// Preview is a compact description of a draft.
type Preview struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Theme        string           `json:"theme"`
	DateRange    DateRange        `json:"dateRange"`
	SectionCount int              `json:"sectionCount"`
	Sections     []SectionSummary `json:"sections"`
}

// Preview summarises the draft without section data.
func (d *Draft) Preview() Preview {
	p := Preview{
		ID:           d.ID,
		Name:         d.Name,
		Theme:        d.Theme,
		DateRange:    d.DateRange,
		SectionCount: len(d.Sections),
		Sections:     make([]SectionSummary, 0, len(d.Sections)),
	}
	for i, s := range d.Sections {
		p.Sections = append(p.Sections, SectionSummary{
			Index:      i,
			Type:       s.Type,
			Title:      s.Title,
			HasData:    s.Data != nil,
			HasInsight: s.Insight != "",
			Fields:     ReferencedFields(s),
		})
	}
	return p
}
