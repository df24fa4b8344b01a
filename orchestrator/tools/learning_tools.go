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

package tools

import (
	"context"
	"fmt"

	"reportpilot/platform/connectors/base"
)

const learningSource = "conversation"

func (e *Executor) learn(ctx context.Context, l base.Learning, store func(context.Context, string, base.Learning) error) (interface{}, error) {
	stored := false
	if store != nil {
		if err := store(ctx, e.policy.CustomerID, l); err != nil {
			return nil, fmt.Errorf("store %s: %w", l.Type, err)
		}
		stored = true
	}
	e.learnings = append(e.learnings, l)
	return map[string]interface{}{
		"learned":    l.Type,
		"key":        l.Key,
		"confidence": l.Confidence,
		"stored":     stored,
	}, nil
}

func (c *LearnTerminology) run(ctx context.Context, e *Executor) (interface{}, error) {
	kind := c.Kind
	if kind == "" {
		kind = base.LearningTerminology
	}
	l := base.Learning{Type: kind, Key: c.Term, Value: c.Meaning, Confidence: confidenceScore(c.Confidence), Source: learningSource}
	var store func(context.Context, string, base.Learning) error
	if e.deps.Knowledge != nil {
		store = e.deps.Knowledge.UpsertTerm
	}
	return e.learn(ctx, l, store)
}

func (c *LearnPreference) run(ctx context.Context, e *Executor) (interface{}, error) {
	l := base.Learning{Type: base.LearningPreference, Key: c.Key, Value: c.Value, Confidence: confidenceScore(c.Confidence), Source: learningSource}
	var store func(context.Context, string, base.Learning) error
	if e.deps.Knowledge != nil {
		store = e.deps.Knowledge.UpsertPreference
	}
	return e.learn(ctx, l, store)
}

// Corrections are stored inactive; a reviewer turns them on.
func (c *RecordCorrection) run(ctx context.Context, e *Executor) (interface{}, error) {
	l := base.Learning{Type: base.LearningCorrection, Key: c.Original, Value: c.Correction, Confidence: confidenceScore(c.Confidence), Source: learningSource}
	var store func(context.Context, string, base.Learning) error
	if e.deps.Knowledge != nil {
		store = e.deps.Knowledge.RecordCorrection
	}
	res, err := e.learn(ctx, l, store)
	if err != nil {
		return nil, err
	}
	res.(map[string]interface{})["pendingReview"] = true
	return res, nil
}

func (c *AskClarification) run(_ context.Context, e *Executor) (interface{}, error) {
	e.clarification = &Clarification{Question: c.Question, Options: c.Options}
	return map[string]interface{}{
		"question": c.Question,
		"options":  c.Options,
		"status":   "awaiting_user",
	}, nil
}
