package tas

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"TSNSpectra/internal/model"
)

const (
	// CycleDenominator expresses cycle times in nanoseconds as a rational
	// number of seconds.
	CycleDenominator = 1_000_000_000

	opSetGateStates = "set-gate-states"
)

// Rational is a cycle time of Numerator/Denominator seconds.
type Rational struct {
	Numerator   uint32 `json:"numerator" yaml:"numerator"`
	Denominator uint32 `json:"denominator" yaml:"denominator"`
}

// ControlEntry is one gate control list row in the shape switch management
// tooling exchanges it.
type ControlEntry struct {
	Index             int    `json:"index" yaml:"index"`
	OperationName     string `json:"operation-name" yaml:"operation-name"`
	GateStatesValue   uint8  `json:"gate-states-value" yaml:"gate-states-value"`
	TimeIntervalValue uint32 `json:"time-interval-value" yaml:"time-interval-value"`
}

// Document is the serialised form of an inferred schedule.
type Document struct {
	AdminCycleTime   Rational       `json:"admin-cycle-time" yaml:"admin-cycle-time"`
	AdminControlList []ControlEntry `json:"admin-control-list" yaml:"admin-control-list"`
}

// NewDocument builds the serialised form of entries for a cycle of cycleNs.
func NewDocument(entries []model.GCLEntry, cycleNs uint64) (*Document, error) {
	if cycleNs > math.MaxUint32 {
		return nil, fmt.Errorf("cycle %d ns: %w", cycleNs, model.ErrCycleTooLong)
	}
	if sum := CycleOf(entries); sum != cycleNs {
		return nil, fmt.Errorf("entries sum to %d ns, cycle is %d ns", sum, cycleNs)
	}
	doc := &Document{
		AdminCycleTime:   Rational{Numerator: uint32(cycleNs), Denominator: CycleDenominator},
		AdminControlList: make([]ControlEntry, len(entries)),
	}
	for i, e := range entries {
		doc.AdminControlList[i] = ControlEntry{
			Index:             i,
			OperationName:     opSetGateStates,
			GateStatesValue:   e.GateStates,
			TimeIntervalValue: e.DurationNs,
		}
	}
	return doc, nil
}

// CycleNs converts the admin cycle time back to nanoseconds. Cycle times that
// are not a whole number of nanoseconds are rejected.
func (d *Document) CycleNs() (uint64, error) {
	r := d.AdminCycleTime
	if r.Denominator == 0 {
		return 0, fmt.Errorf("cycle time has a zero denominator")
	}
	scaled := uint64(r.Numerator) * CycleDenominator
	if scaled%uint64(r.Denominator) != 0 {
		return 0, fmt.Errorf("cycle time %d/%d is not a whole number of nanoseconds", r.Numerator, r.Denominator)
	}
	return scaled / uint64(r.Denominator), nil
}

// Entries reconstructs the gate control list and its cycle length.
func (d *Document) Entries() ([]model.GCLEntry, uint64, error) {
	cycleNs, err := d.CycleNs()
	if err != nil {
		return nil, 0, err
	}
	entries := make([]model.GCLEntry, len(d.AdminControlList))
	for i, ce := range d.AdminControlList {
		if ce.OperationName != "" && ce.OperationName != opSetGateStates {
			return nil, 0, fmt.Errorf("entry %d: unsupported operation %q", i, ce.OperationName)
		}
		entries[i] = model.GCLEntry{GateStates: ce.GateStatesValue, DurationNs: ce.TimeIntervalValue}
	}
	if sum := CycleOf(entries); sum != cycleNs {
		return nil, 0, fmt.Errorf("entries sum to %d ns, cycle is %d ns", sum, cycleNs)
	}
	return entries, cycleNs, nil
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode gcl document: %w", err)
	}
	return nil
}

// Decode reads a JSON document written by Encode.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode gcl document: %w", err)
	}
	return &doc, nil
}
