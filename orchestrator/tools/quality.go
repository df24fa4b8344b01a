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
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Field quality labels, by populated percentage.
const (
	QualityExcellent       = "excellent"
	QualityGood            = "good"
	QualityModerate        = "moderate"
	QualityPoor            = "poor"
	QualityBusy            = "busy"
	QualityHighCardinality = "high-cardinality"
)

// FieldQuality grades a field by how much of it is populated.
func FieldQuality(populatedPercent float64) string {
	switch {
	case populatedPercent >= 95:
		return QualityExcellent
	case populatedPercent >= 80:
		return QualityGood
	case populatedPercent >= 50:
		return QualityModerate
	default:
		return QualityPoor
	}
}

// GroupingQuality grades a grouping by how many groups it yields.
func GroupingQuality(groups int) string {
	switch {
	case groups <= 5:
		return QualityExcellent
	case groups <= 12:
		return QualityGood
	case groups <= 25:
		return QualityModerate
	case groups <= 50:
		return QualityBusy
	default:
		return QualityHighCardinality
	}
}

// SuggestChart picks a chart type for a grouping.
func SuggestChart(groups int, fieldType string) string {
	if fieldType == "date" {
		return "line"
	}
	switch {
	case groups <= 5:
		return "pie"
	case groups <= 12:
		return "bar"
	case groups <= 25:
		return "horizontal-bar"
	default:
		return "table"
	}
}

func fieldRecommendation(total, populated, unique int64, quality string) string {
	switch {
	case total == 0:
		return "No data for this field in the current scope."
	case quality == QualityPoor:
		return fmt.Sprintf("Sparse field: only %.0f%% populated. Avoid using it as a primary grouping.", percent(populated, total))
	case unique > 50 && unique >= populated*9/10:
		return "Values are mostly unique. Show it as a table column rather than grouping by it."
	case unique > 50:
		return fmt.Sprintf("High cardinality (%d distinct values). Consider filtering or limiting to the top values.", unique)
	case unique <= 12:
		return "Good grouping candidate for a chart."
	default:
		return "Usable for grouping. Limit the chart to the top values."
	}
}

func groupingRecommendation(quality string, groups int) string {
	switch quality {
	case QualityExcellent, QualityGood:
		return "Groups chart cleanly."
	case QualityModerate:
		return "Readable as a bar chart. Consider a top-10 limit."
	case QualityBusy:
		return fmt.Sprintf("%d groups is busy for a chart. Limit to the top values or add a filter.", groups)
	default:
		return fmt.Sprintf("High cardinality: %d groups. Filter first or use a table.", groups)
	}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// Insight writes a one-line observation about grouped rows. Rows carry the
// group under groupBy and the aggregate under "value".
func Insight(rows []map[string]interface{}, groupBy, metric, aggregation string, totalGroups int) string {
	if len(rows) == 0 {
		return fmt.Sprintf("No data found when grouping by %s.", groupBy)
	}
	var sum float64
	for _, r := range rows {
		sum += cast.ToFloat64(r["value"])
	}
	top := rows[0]
	topVal := cast.ToFloat64(top["value"])
	label := cast.ToString(top[groupBy])
	if label == "" {
		label = "(blank)"
	}

	what := "count"
	if metric != "" && metric != "*" && !strings.EqualFold(metric, "count") {
		agg := aggregation
		if agg == "" {
			agg = "count"
		}
		what = agg + " of " + metric
	}

	if totalGroups < len(rows) {
		totalGroups = len(rows)
	}
	if sum > 0 && aggregationIsAdditive(aggregation) {
		return fmt.Sprintf("%s leads %s with %s %s (%.0f%% of the shown total) across %d groups.",
			label, groupBy, formatNumber(topVal), what, topVal/sum*100, totalGroups)
	}
	return fmt.Sprintf("%s leads %s with %s %s across %d groups.", label, groupBy, formatNumber(topVal), what, totalGroups)
}

func aggregationIsAdditive(aggregation string) bool {
	switch strings.ToLower(aggregation) {
	case "", "count", "sum":
		return true
	}
	return false
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		s := fmt.Sprintf("%d", int64(v))
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		for i := len(s) - 3; i > 0; i -= 3 {
			s = s[:i] + "," + s[i:]
		}
		if neg {
			s = "-" + s
		}
		return s
	}
	return fmt.Sprintf("%.2f", v)
}

// confidenceScore maps a coarse confidence to a score.
func confidenceScore(level string) float64 {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "high":
		return 0.9
	case "low":
		return 0.5
	default:
		return 0.7
	}
}
