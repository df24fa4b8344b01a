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

// Package sanitizer keeps restricted business data out of what non-admin
// callers receive. Messages are scanned and, when serious enough, redacted
// in place; report sections mentioning restricted fields are dropped whole.
package sanitizer

import (
	"regexp"
	"sort"
	"strings"

	"reportpilot/platform/shared/logger"
)

// Severity grades how much restricted data a message appears to disclose.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category is the kind of rule that produced a finding.
type Category string

const (
	CategoryKeyword    Category = "restricted_keyword"
	CategoryFinancial  Category = "financial_figure"
	CategoryDisclosure Category = "internal_disclosure"
)

const (
	redactedFigure = "[REDACTED]"
	redactedPhrase = "[internal data redacted]"
)

// Finding is one rule match in a message.
type Finding struct {
	Category Category `json:"category"`
	Match    string   `json:"match"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	// Exempt is set when a safe phrase sits within the context window.
	Exempt bool `json:"exempt,omitempty"`
	// Identifier is set for keyword matches inside a snake_case field name.
	// Those are redacted at any severity.
	Identifier bool `json:"identifier,omitempty"`
}

// Result is the outcome of Validate.
type Result struct {
	IsValid          bool      `json:"isValid"`
	Severity         Severity  `json:"severity"`
	SanitizedMessage string    `json:"sanitizedMessage"`
	Findings         []Finding `json:"findings"`
}

// Config holds the word lists the sanitizer matches against.
type Config struct {
	RestrictedKeywords []string `yaml:"restricted_keywords"`
	SafePhrases        []string `yaml:"safe_phrases"`
	ContextWindow      int      `yaml:"context_window"`
}

// DefaultRestrictedKeywords are the internal financial field names.
func DefaultRestrictedKeywords() []string {
	return []string{
		"cost", "carrier_pay", "carrier_rate", "buy_rate", "target_rate",
		"margin", "profit", "markup", "commission",
	}
}

// DefaultSafePhrases are refusals and notices that legitimately mention
// restricted terms.
func DefaultSafePhrases() []string {
	return []string{
		"cost data is not available",
		"cost information is not available",
		"cost data isn't available",
		"financial data is restricted",
		"restricted field",
		"restricted data",
		"is restricted",
		"not authorized to view",
		"don't have access to",
		"do not have access to",
		"cannot share",
		"can't share",
		"unable to share",
		"requires admin",
		"admin access",
		"not available for your role",
	}
}

// DefaultConfig returns the built-in lists with a 150 character window.
func DefaultConfig() Config {
	return Config{
		RestrictedKeywords: DefaultRestrictedKeywords(),
		SafePhrases:        DefaultSafePhrases(),
		ContextWindow:      150,
	}
}

const figure = `(?:\$\s?\d+(?:,\d{3})*(?:\.\d+)?(?:\s?[kKmM]\b)?|\d+(?:\.\d+)?\s?%)`
const financialTerm = `(?:costs?|margins?|profits?|markups?|commissions?)`

// figureReach is how far from a restricted keyword, within one sentence, a
// figure is taken to describe it.
const figureReach = 60

var (
	figureRe = regexp.MustCompile(figure)

	financialPatterns = []*regexp.Regexp{
		// "$1,200 in carrier cost", "18% margin"
		regexp.MustCompile(`(?i)` + figure + `(?:\s+[a-z_]+){0,3}?\s+` + financialTerm + `\b`),
		// "cost is $500", "margin of 12.5%"
		regexp.MustCompile(`(?i)\b` + financialTerm + `\b[^$%\n]{0,40}?` + figure),
	}

	disclosurePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bour (?:margins?|markups?|profits?|commissions?|take rate)\s+(?:is|are|was|were|of|sits at|runs at)\b(?:[^.\n]|\.\d)*`),
		regexp.MustCompile(`(?i)\bwe (?:pay|paid) (?:the )?carriers?\b(?:[^.\n]|\.\d)*`),
		regexp.MustCompile(`(?i)\bour (?:internal|buy) (?:costs?|rates?)\b(?:[^.\n]|\.\d)*`),
	}
)

// Sanitizer validates outgoing text for one deployment's keyword lists.
// It is immutable after construction and safe for concurrent use.
type Sanitizer struct {
	keywords    []string
	safePhrases []string
	window      int
	log         *logger.Logger
}

// New builds a sanitizer. Empty lists fall back to the defaults.
func New(cfg Config) *Sanitizer {
	if len(cfg.RestrictedKeywords) == 0 {
		cfg.RestrictedKeywords = DefaultRestrictedKeywords()
	}
	if len(cfg.SafePhrases) == 0 {
		cfg.SafePhrases = DefaultSafePhrases()
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 150
	}

	s := &Sanitizer{
		window: cfg.ContextWindow,
		log:    logger.New("sanitizer"),
	}
	for _, kw := range cfg.RestrictedKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		s.keywords = append(s.keywords, strings.ToLower(kw))
	}
	for _, p := range cfg.SafePhrases {
		s.safePhrases = append(s.safePhrases, strings.ToLower(p))
	}
	return s
}

// Keywords returns the lower-cased restricted keywords.
func (s *Sanitizer) Keywords() []string {
	return append([]string(nil), s.keywords...)
}

// Validate scans message for a caller. Admin callers get the message back
// untouched with no scanning.
func (s *Sanitizer) Validate(message string, isAdmin bool) Result {
	if isAdmin {
		return Result{IsValid: true, Severity: SeverityNone, SanitizedMessage: message, Findings: []Finding{}}
	}

	findings := s.scan(message)
	severity := grade(findings)
	res := Result{
		IsValid:          severity == SeverityNone || severity == SeverityLow,
		Severity:         severity,
		SanitizedMessage: message,
		Findings:         findings,
	}

	full := severity == SeverityHigh || severity == SeverityCritical
	if full || hasIdentifier(findings) {
		res.SanitizedMessage = redact(message, findings, full)
	}
	if full {
		s.log.Warn("", "", "Redacted restricted data from outgoing message", map[string]interface{}{
			"severity": string(severity),
			"findings": countActive(findings),
		})
	}
	return res
}

func (s *Sanitizer) scan(message string) []Finding {
	findings := []Finding{}
	for _, loc := range s.keywordSpans(message) {
		f := s.finding(message, CategoryKeyword, loc, true)
		f.Identifier = strings.Contains(f.Match, "_")
		findings = append(findings, f)
	}
	for _, re := range financialPatterns {
		for _, loc := range re.FindAllStringIndex(message, -1) {
			findings = append(findings, s.finding(message, CategoryFinancial, loc, true))
		}
	}
	findings = append(findings, s.figuresNearKeywords(message, findings)...)
	for _, re := range disclosurePatterns {
		for _, loc := range re.FindAllStringIndex(message, -1) {
			findings = append(findings, s.finding(message, CategoryDisclosure, loc, false))
		}
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })
	return findings
}

// keywordSpans finds every restricted keyword, optionally pluralized, that
// is not embedded in a longer word. Underscores count as separators so
// total_cost and cost_per_mile match; the span is widened to the whole
// identifier. Matching is ASCII case-insensitive.
func (s *Sanitizer) keywordSpans(message string) [][]int {
	lower := asciiLower(message)
	seen := make(map[[2]int]bool)
	var spans [][]int
	for _, kw := range s.keywords {
		for from := 0; from < len(lower); {
			i := strings.Index(lower[from:], kw)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(kw)
			from = start + 1
			if start > 0 && isAlnum(lower[start-1]) {
				continue
			}
			if end < len(lower) && lower[end] == 's' && (end+1 == len(lower) || !isAlnum(lower[end+1])) {
				end++
			}
			if end < len(lower) && isAlnum(lower[end]) {
				continue
			}
			lo, hi := start, end
			for lo > 0 && isIdent(lower[lo-1]) {
				lo--
			}
			for hi < len(lower) && isIdent(lower[hi]) {
				hi++
			}
			key := [2]int{lo, hi}
			if seen[key] {
				continue
			}
			seen[key] = true
			spans = append(spans, []int{lo, hi})
		}
	}
	return spans
}

// figuresNearKeywords turns a live keyword with a figure close by in the
// same sentence into a financial finding, unless a financial pattern
// already covers the keyword.
func (s *Sanitizer) figuresNearKeywords(message string, findings []Finding) []Finding {
	figures := figureRe.FindAllStringIndex(message, -1)
	if len(figures) == 0 {
		return nil
	}
	var out []Finding
	for _, kw := range findings {
		if kw.Category != CategoryKeyword || kw.Exempt || coveredByFinancial(kw, findings) {
			continue
		}
		for _, fig := range figures {
			var lo, hi int
			switch {
			case fig[0] >= kw.End && fig[0]-kw.End <= figureReach:
				lo, hi = kw.Start, fig[1]
			case fig[1] <= kw.Start && kw.Start-fig[1] <= figureReach:
				lo, hi = fig[0], kw.End
			default:
				continue
			}
			if crossesSentence(message[lo:hi]) {
				continue
			}
			out = append(out, s.finding(message, CategoryFinancial, []int{lo, hi}, true))
		}
	}
	return out
}

func coveredByFinancial(kw Finding, findings []Finding) bool {
	for _, f := range findings {
		if f.Category == CategoryFinancial && f.Start <= kw.Start && kw.End <= f.End {
			return true
		}
	}
	return false
}

func crossesSentence(text string) bool {
	if strings.ContainsRune(text, '\n') {
		return true
	}
	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', ';':
			if text[i+1] == ' ' {
				return true
			}
		}
	}
	return false
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isIdent(c byte) bool {
	return isAlnum(c) || c == '_'
}

func (s *Sanitizer) finding(message string, c Category, loc []int, exemptible bool) Finding {
	f := Finding{Category: c, Match: message[loc[0]:loc[1]], Start: loc[0], End: loc[1]}
	if exemptible {
		f.Exempt = s.inSafeContext(message, loc[0], loc[1])
	}
	return f
}

// inSafeContext reports whether a safe phrase appears within the window
// around [start, end).
func (s *Sanitizer) inSafeContext(message string, start, end int) bool {
	lo := start - s.window
	if lo < 0 {
		lo = 0
	}
	hi := end + s.window
	if hi > len(message) {
		hi = len(message)
	}
	ctx := strings.ToLower(message[lo:hi])
	for _, p := range s.safePhrases {
		if strings.Contains(ctx, p) {
			return true
		}
	}
	return false
}

func grade(findings []Finding) Severity {
	var keywords, financial, disclosure int
	for _, f := range findings {
		if f.Exempt {
			continue
		}
		switch f.Category {
		case CategoryKeyword:
			keywords++
		case CategoryFinancial:
			financial++
		case CategoryDisclosure:
			disclosure++
		}
	}
	switch {
	case disclosure > 0, financial >= 2:
		return SeverityCritical
	case financial == 1:
		return SeverityHigh
	case keywords >= 3:
		return SeverityMedium
	case keywords > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}

func countActive(findings []Finding) int {
	n := 0
	for _, f := range findings {
		if !f.Exempt {
			n++
		}
	}
	return n
}

func hasIdentifier(findings []Finding) bool {
	for _, f := range findings {
		if f.Identifier && !f.Exempt {
			return true
		}
	}
	return false
}

type edit struct {
	start, end int
	text       string
}

// redact rewrites message from its findings. Restricted identifiers are
// always replaced. With full set, disclosure phrases are replaced whole and
// every figure inside a live financial finding is replaced. Disclosure edits
// win over anything they overlap.
func redact(message string, findings []Finding, full bool) string {
	var edits []edit
	if full {
		for _, f := range findings {
			if f.Category == CategoryDisclosure {
				edits = addEdit(edits, edit{f.Start, f.End, redactedPhrase})
			}
		}
		for _, f := range findings {
			if f.Category != CategoryFinancial || f.Exempt {
				continue
			}
			for _, loc := range figureRe.FindAllStringIndex(message[f.Start:f.End], -1) {
				edits = addEdit(edits, edit{f.Start + loc[0], f.Start + loc[1], redactedFigure})
			}
		}
	}
	for _, f := range findings {
		if f.Identifier && !f.Exempt {
			edits = addEdit(edits, edit{f.Start, f.End, redactedFigure})
		}
	}
	if len(edits) == 0 {
		return message
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	last := 0
	for _, e := range edits {
		b.WriteString(message[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(message[last:])
	return b.String()
}

// addEdit appends e unless it overlaps an edit already accepted.
func addEdit(edits []edit, e edit) []edit {
	for _, x := range edits {
		if e.start < x.end && x.start < e.end {
			return edits
		}
	}
	return append(edits, e)
}
