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

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"reportpilot/platform/connectors/base"
)

// KnowledgeRepository implements base.KnowledgeStore.
type KnowledgeRepository struct {
	db *sql.DB
}

var _ base.KnowledgeStore = (*KnowledgeRepository)(nil)

// NewKnowledgeRepository creates a repository over db.
func NewKnowledgeRepository(db *sql.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// UpsertTerm stores a term or product name. Confidence only ever rises.
func (r *KnowledgeRepository) UpsertTerm(ctx context.Context, customerID string, l base.Learning) error {
	kind := l.Type
	if kind != base.LearningProduct {
		kind = base.LearningTerminology
	}
	query := `
		INSERT INTO customer_terminology (customer_id, term, meaning, kind, confidence, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (customer_id, term) DO UPDATE SET
			meaning = EXCLUDED.meaning,
			kind = EXCLUDED.kind,
			confidence = GREATEST(customer_terminology.confidence, EXCLUDED.confidence),
			source = EXCLUDED.source,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, customerID, l.Key, l.Value, kind, l.Confidence, l.Source); err != nil {
		return fmt.Errorf("failed to upsert term %q: %w", l.Key, err)
	}
	return nil
}

// UpsertPreference stores a reporting preference.
func (r *KnowledgeRepository) UpsertPreference(ctx context.Context, customerID string, l base.Learning) error {
	query := `
		INSERT INTO customer_preferences (customer_id, pref_key, pref_value, confidence, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (customer_id, pref_key) DO UPDATE SET
			pref_value = EXCLUDED.pref_value,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, customerID, l.Key, l.Value, l.Confidence, l.Source); err != nil {
		return fmt.Errorf("failed to upsert preference %q: %w", l.Key, err)
	}
	return nil
}

// RecordCorrection appends a correction with is_active = false. Activation
// happens out of band after review.
func (r *KnowledgeRepository) RecordCorrection(ctx context.Context, customerID string, l base.Learning) error {
	query := `
		INSERT INTO customer_corrections (customer_id, correction_key, correction_value, confidence, source, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW())`

	if _, err := r.db.ExecContext(ctx, query, customerID, l.Key, l.Value, l.Confidence, l.Source); err != nil {
		return fmt.Errorf("failed to record correction %q: %w", l.Key, err)
	}
	return nil
}
