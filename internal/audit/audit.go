// Package audit scans published artifacts for literal echoes of
// registry values and reports divergence. The engine owns the
// authoritative values; pages, tables, and reports duplicate them as
// text, and those copies drift. The auditor only ever informs: findings
// never fail a run and never block export, and artifacts are never
// written back.
package audit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"formulagraph/internal/registry"
	"formulagraph/internal/result"
	"formulagraph/internal/types"
)

// Artifact is one opaque text blob owned by the presentation layer.
type Artifact struct {
	Name string // file path or other caller-meaningful label
	Text string
}

// Finding is one detected divergence between the authoritative value
// and a literal found in an artifact.
type Finding struct {
	Artifact  string   `json:"artifact"`
	Line      int      `json:"line"` // 1-based
	Column    int      `json:"column"`
	FormulaID types.ID `json:"formula_id"`
	Found     float64  `json:"found"`
	Expected  float64  `json:"expected"`
	Delta     float64  `json:"delta"`
}

// Report summarizes one audit pass. Reports are produced fresh each
// pass and never persisted.
type Report struct {
	TotalOccurrences int        `json:"total_occurrences"`
	Mismatches       []Finding  `json:"mismatches"`
	Coverage         []types.ID `json:"coverage"` // ids with zero found occurrences
}

// Auditor compares artifact literals against store values. Patterns are
// supplied by the caller: each regexp must contain exactly one capture
// group holding the numeric literal to check.
type Auditor struct {
	patterns         map[types.ID]*regexp.Regexp
	defaultTolerance float64 // relative, used when a formula declares none
	logger           *zap.Logger
}

// New builds an Auditor from an id -> pattern mapping. A pattern
// without a capture group is rejected here rather than silently
// matching nothing later.
func New(patterns map[types.ID]string, defaultTolerance float64, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make(map[types.ID]*regexp.Regexp, len(patterns))
	for id, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern for %q: %w", id, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern for %q has no capture group for the numeric literal", id)
		}
		compiled[id] = re
	}
	return &Auditor{patterns: compiled, defaultTolerance: defaultTolerance, logger: logger}, nil
}

// Run scans every artifact with every pattern. A literal is a mismatch
// when its delta from the authoritative Ok value exceeds the formula's
// tolerance (or the default). Formulas without an Ok scalar value still
// have their occurrences counted, but cannot be compared.
func (a *Auditor) Run(store *result.Store, reg *registry.Registry, artifacts []Artifact) *Report {
	report := &Report{}
	seen := make(map[types.ID]bool, len(a.patterns))

	for _, artifact := range artifacts {
		lines := lineIndex(artifact.Text)
		for _, def := range reg.All() {
			re, ok := a.patterns[def.ID]
			if !ok {
				continue
			}
			matches := re.FindAllStringSubmatchIndex(artifact.Text, -1)
			if len(matches) == 0 {
				continue
			}
			seen[def.ID] = true
			report.TotalOccurrences += len(matches)

			expected, haveExpected := a.expectedScalar(store, def.ID)
			for _, m := range matches {
				if m[2] < 0 {
					continue
				}
				literal := artifact.Text[m[2]:m[3]]
				found, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
				if err != nil {
					a.logger.Warn("unparseable literal in artifact",
						zap.String("artifact", artifact.Name),
						zap.String("formula", string(def.ID)),
						zap.String("literal", literal))
					continue
				}
				if !haveExpected {
					continue
				}
				delta := abs(found - expected)
				if delta <= a.tolerance(def)*absOrOne(expected) {
					continue
				}
				line, col := locate(lines, m[2])
				report.Mismatches = append(report.Mismatches, Finding{
					Artifact:  artifact.Name,
					Line:      line,
					Column:    col,
					FormulaID: def.ID,
					Found:     found,
					Expected:  expected,
					Delta:     delta,
				})
			}
		}
	}

	for _, def := range reg.All() {
		if _, hasPattern := a.patterns[def.ID]; hasPattern && !seen[def.ID] {
			report.Coverage = append(report.Coverage, def.ID)
		}
	}
	return report
}

// expectedScalar returns the authoritative value for id, if the store
// holds an Ok scalar for it.
func (a *Auditor) expectedScalar(store *result.Store, id types.ID) (float64, bool) {
	cv, ok := store.Get(id)
	if !ok || cv.Status != types.StatusOk {
		return 0, false
	}
	return cv.Value.AsScalar()
}

func (a *Auditor) tolerance(def *registry.FormulaDefinition) float64 {
	if def.Tolerance != nil {
		return *def.Tolerance
	}
	return a.defaultTolerance
}

// lineIndex returns the byte offset of each line start.
func lineIndex(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// locate converts a byte offset into 1-based line and column.
func locate(lineStarts []int, offset int) (line, col int) {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - lineStarts[lo] + 1
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// absOrOne scales a relative tolerance; near zero the bound degrades to
// the tolerance itself rather than zero.
func absOrOne(f float64) float64 {
	if f == 0 {
		return 1
	}
	return abs(f)
}
