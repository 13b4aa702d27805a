package tas

import (
	"bytes"
	"strings"
	"testing"

	"TSNSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_RoundTrip(t *testing.T) {
	entries := []model.GCLEntry{
		{GateStates: 0b01, DurationNs: 3_000_000},
		{GateStates: 0b10, DurationNs: 7_000_000},
	}
	doc, err := NewDocument(entries, 10_000_000)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))
	assert.Contains(t, buf.String(), `"operation-name": "set-gate-states"`)
	assert.Contains(t, buf.String(), `"denominator": 1000000000`)

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	got, cycle, err := decoded.Entries()
	require.NoError(t, err)
	assert.Equal(t, entries, got)
	assert.Equal(t, uint64(10_000_000), cycle)
}

func TestDocument_ReducedCycleTime(t *testing.T) {
	in := `{"admin-cycle-time":{"numerator":1,"denominator":1000},
	"admin-control-list":[{"index":0,"operation-name":"set-gate-states","gate-states-value":255,"time-interval-value":1000000}]}`

	doc, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	entries, cycle, err := doc.Entries()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), cycle)
	assert.Equal(t, []model.GCLEntry{{GateStates: 0xff, DurationNs: 1_000_000}}, entries)
}

func TestDocument_Errors(t *testing.T) {
	_, err := NewDocument([]model.GCLEntry{{DurationNs: 5}}, 10)
	assert.Error(t, err)

	_, err = NewDocument(nil, 1<<33)
	assert.ErrorIs(t, err, model.ErrCycleTooLong)

	tests := map[string]string{
		"bad sum":      `{"admin-cycle-time":{"numerator":10,"denominator":1000000000},"admin-control-list":[{"operation-name":"set-gate-states","time-interval-value":4}]}`,
		"bad op":       `{"admin-cycle-time":{"numerator":10,"denominator":1000000000},"admin-control-list":[{"operation-name":"set-and-hold-mac","time-interval-value":10}]}`,
		"zero denom":   `{"admin-cycle-time":{"numerator":10,"denominator":0},"admin-control-list":[]}`,
		"inexact time": `{"admin-cycle-time":{"numerator":1,"denominator":3},"admin-control-list":[]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			doc, err := Decode(strings.NewReader(in))
			require.NoError(t, err)
			_, _, err = doc.Entries()
			assert.Error(t, err)
		})
	}

	_, err = Decode(strings.NewReader("{"))
	assert.Error(t, err)
}
