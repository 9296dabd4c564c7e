// Package ukcat classifies free text into UK Charity Activity Tag codes
// using the regex patterns published by the charity-classification
// project. The pattern table is compiled once at startup into an immutable
// snapshot; tagging performs no I/O.
package ukcat

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"

	"go.uber.org/zap"
)

//go:embed data/ukcat.csv
var dataFS embed.FS

type pattern struct {
	code    string
	tag     string
	include *regexp.Regexp
	exclude *regexp.Regexp // may be nil
}

// Tagger matches text against the UKCAT pattern table. Safe for concurrent
// use: the pattern slice is never mutated after construction.
type Tagger struct {
	patterns []pattern
}

// New loads the embedded pattern table.
func New(logger *zap.Logger) (*Tagger, error) {
	f, err := dataFS.Open("data/ukcat.csv")
	if err != nil {
		return nil, fmt.Errorf("open ukcat patterns: %w", err)
	}
	defer f.Close()
	return NewFromReader(f, logger)
}

// NewFromReader compiles a pattern table from CSV with columns
// (Code, tag, Regular expression, Exclude regular expression). Rows with
// invalid regexes are skipped with a warning.
func NewFromReader(r io.Reader, logger *zap.Logger) (*Tagger, error) {
	log := logger.Named("ukcat")
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ukcat patterns: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ukcat pattern table is empty")
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[name] = i
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var patterns []pattern
	for _, row := range rows[1:] {
		code := field(row, "Code")
		includeSrc := field(row, "Regular expression")
		if code == "" || includeSrc == "" {
			continue
		}
		include, err := regexp.Compile("(?i)" + includeSrc)
		if err != nil {
			log.Warn("invalid include regex, skipping", zap.String("code", code), zap.Error(err))
			continue
		}
		p := pattern{code: code, tag: field(row, "tag"), include: include}
		if excludeSrc := field(row, "Exclude regular expression"); excludeSrc != "" {
			exclude, err := regexp.Compile("(?i)" + excludeSrc)
			if err != nil {
				log.Warn("invalid exclude regex, skipping", zap.String("code", code), zap.Error(err))
				continue
			}
			p.exclude = exclude
		}
		patterns = append(patterns, p)
	}

	log.Info("ukcat pattern table loaded", zap.Int("patterns", len(patterns)))
	return &Tagger{patterns: patterns}, nil
}

// Tag returns the sorted, de-duplicated set of codes whose include pattern
// matches text and whose exclude pattern (if any) does not. Empty text
// yields an empty list.
func (t *Tagger) Tag(text string) []string {
	if text == "" {
		return nil
	}
	seen := map[string]bool{}
	for _, p := range t.patterns {
		if seen[p.code] {
			continue
		}
		if !p.include.MatchString(text) {
			continue
		}
		if p.exclude != nil && p.exclude.MatchString(text) {
			continue
		}
		seen[p.code] = true
	}

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Size returns the number of compiled patterns.
func (t *Tagger) Size() int { return len(t.patterns) }
