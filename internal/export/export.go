// Package export serializes the final consistent snapshot for the
// presentation layer. A Snapshot is deliberately flat: one record per
// Ok formula with value, units, and fingerprint, so page renderers and
// generated constant tables can consume it without knowing anything
// about the engine.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"formulagraph/internal/registry"
	"formulagraph/internal/result"
	"formulagraph/internal/types"
)

// Record is one exported formula.
type Record struct {
	FormulaID   types.ID    `json:"formula_id"`
	Value       types.Value `json:"value"`
	Units       string      `json:"units,omitempty"`
	Fingerprint string      `json:"fingerprint"`
}

// Snapshot is the flat export surface. Records are sorted by formula
// id; Skipped lists the non-Ok ids omitted in non-strict mode.
type Snapshot struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Records     []Record   `json:"records"`
	Skipped     []types.ID `json:"skipped,omitempty"`
}

// IncompleteExportError reports non-Ok formulas under strict mode.
type IncompleteExportError struct {
	NonOk []types.ID
}

func (e *IncompleteExportError) Error() string {
	ids := make([]string, len(e.NonOk))
	for i, id := range e.NonOk {
		ids[i] = string(id)
	}
	return fmt.Sprintf("export incomplete: %d formula(s) not Ok: %s",
		len(e.NonOk), strings.Join(ids, ", "))
}

// Build assembles a Snapshot from the store. Only Ok values are
// exported; Failed, Blocked, Stale, and never-computed formulas go to
// Skipped. In strict mode any non-Ok formula fails the export with
// IncompleteExportError instead.
func Build(store *result.Store, reg *registry.Registry, strict bool) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: time.Now().UTC()}

	var nonOk []types.ID
	for _, def := range reg.All() {
		cv, ok := store.Get(def.ID)
		if !ok || cv.Status != types.StatusOk {
			nonOk = append(nonOk, def.ID)
			continue
		}
		snap.Records = append(snap.Records, Record{
			FormulaID:   def.ID,
			Value:       cv.Value,
			Units:       def.Units,
			Fingerprint: cv.InputsFingerprint,
		})
	}
	sort.Slice(nonOk, func(i, j int) bool { return nonOk[i] < nonOk[j] })

	if strict && len(nonOk) > 0 {
		return nil, &IncompleteExportError{NonOk: nonOk}
	}

	snap.Skipped = nonOk
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].FormulaID < snap.Records[j].FormulaID
	})
	return snap, nil
}

// WriteJSON renders the snapshot as indented JSON.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
