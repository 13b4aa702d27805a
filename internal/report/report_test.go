package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/factory"
	"TSNSpectra/internal/logging"
	"TSNSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *model.Report {
	return &model.Report{
		SessionID:    "3f1c2a9e-0000-4000-8000-000000000001",
		Mode:         config.ModeBoth,
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		LinkSpeedBps: 1e9,
		Classes: []model.ClassReport{
			{
				Class: 3, Observations: 500, TotalBytes: 750000, Bursts: 50, Status: "ok",
				AvgIntervalUs: 210.5, StddevIntervalUs: 580.5,
				Estimate: &model.CBSEstimate{
					MeasuredBps: 40e6, BurstRatio: 0.1, AvgGapUs: 2000, BurstCount: 50,
					MaxBurstBytes: 15000, IsShaped: true, IdleSlopeBps: 40e6, SendSlopeBps: -960e6,
					HiCreditBytes: 22500, LoCreditBytes: -22500, Confidence: model.ConfidenceHigh,
					AvgBurstUs: 108, DurationMs: 100.5, BandwidthPercent: 4,
				},
			},
			{Class: 5, Observations: 4, Status: "class 5 has 4 observations, need 10: insufficient data"},
		},
		TAS: &model.TASReport{
			CycleNs: 10_000_000,
			Score:   2.3,
			Windows: []model.ClassWindows{
				{Class: 3, Status: "ok", Truncated: true, Windows: []model.GateWindow{{StartOffsetNs: 0, DurationNs: 3_000_000}}},
			},
			GCL: []model.GCLEntry{
				{GateStates: 0b1000, DurationNs: 3_000_000},
				{GateStates: 0, DurationNs: 7_000_000},
			},
		},
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatJSON))

	var back model.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, sampleReport(), &back)
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatYAML))
	assert.Contains(t, buf.String(), "idle_slope_bps: 4e+07")
	assert.Contains(t, buf.String(), "truncated: true")

	var back model.Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, uint64(10_000_000), back.TAS.CycleNs)
	assert.Len(t, back.Classes, 2)
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatTable))
	out := buf.String()

	assert.Contains(t, out, "40.000 Mbps")
	assert.Contains(t, out, "-960.000 Mbps")
	assert.Contains(t, out, "insufficient data")
	assert.Contains(t, out, "10000000 ns (detected")
	assert.Contains(t, out, "00001000")
	assert.Contains(t, out, "[0+3000000) (truncated)")
	assert.Contains(t, out, "210.5/580.5")
	assert.Contains(t, out, "4.00")
	assert.Contains(t, out, "Mode")

	r := sampleReport()
	r.TAS = nil
	r.TASError = "no periodicity found"
	buf.Reset()
	require.NoError(t, Render(&buf, r, FormatTable))
	assert.Contains(t, buf.String(), "no periodicity found")
}

func TestRender_UnknownFormat(t *testing.T) {
	assert.Error(t, Render(&bytes.Buffer{}, sampleReport(), "xml"))
}

func TestFileWriter(t *testing.T) {
	root := t.TempDir()
	w, err := NewFileWriter(config.FileWriterConfig{RootPath: root, Format: FormatYAML})
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleReport()))

	dir := filepath.Join(root, sampleReport().SessionID)
	_, err = os.Stat(filepath.Join(dir, "report.yaml"))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "gcl.json"))
	require.NoError(t, err)
	defer f.Close()
	doc, err := tas.Decode(f)
	require.NoError(t, err)
	entries, cycle, err := doc.Entries()
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), cycle)
	assert.Equal(t, sampleReport().TAS.GCL, entries)
}

func TestFileWriter_NoSchedule(t *testing.T) {
	root := t.TempDir()
	w, err := NewFileWriter(config.FileWriterConfig{RootPath: root})
	require.NoError(t, err)

	r := sampleReport()
	r.TAS = nil
	r.TASError = "no periodicity found"
	require.NoError(t, w.Write(r))

	entries, err := os.ReadDir(filepath.Join(root, r.SessionID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}

func TestNewFileWriter_Rejects(t *testing.T) {
	_, err := NewFileWriter(config.FileWriterConfig{})
	assert.Error(t, err)
	_, err = NewFileWriter(config.FileWriterConfig{RootPath: "x", Format: "csv"})
	assert.Error(t, err)
}

func TestRows(t *testing.T) {
	r := sampleReport()

	rows := estimateRows(r)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 21)
	assert.Len(t, rows[1], 21)
	assert.Nil(t, rows[1][11])
	assert.Nil(t, rows[1][20])
	assert.Equal(t, "ok", rows[0][8])
	assert.Equal(t, 210.5, rows[0][9])

	gcl := gclRows(r)
	require.Len(t, gcl, 2)
	assert.Equal(t, []any{r.SessionID, r.CreatedAt, uint64(10_000_000), uint16(1), uint8(0), uint32(7_000_000)}, gcl[1])

	r.TAS = nil
	assert.Empty(t, gclRows(r))
}

type failingConn struct {
	execs  int
	closed bool
}

func (c *failingConn) Exec(ctx context.Context, query string, args ...any) error {
	c.execs++
	return errors.New("table engine unavailable")
}

func (c *failingConn) Close() error {
	c.closed = true
	return nil
}

func TestInitTables_ClosesOnFailure(t *testing.T) {
	conn := &failingConn{}
	err := initTables(context.Background(), conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create table")
	assert.Equal(t, 1, conn.execs)
	assert.True(t, conn.closed)
}

func TestFactory_CreatesFileWriter(t *testing.T) {
	assert.Contains(t, factory.Types(), "file")
	assert.Contains(t, factory.Types(), "clickhouse")

	cfg := config.Default()
	cfg.Writers = []config.WriterDef{
		{Type: "file", Enabled: true, File: config.FileWriterConfig{RootPath: t.TempDir(), Format: "table"}},
		{Type: "clickhouse", Enabled: false},
	}
	writers, err := factory.CreateWriters(cfg, logging.Discard().WithField("component", "test"))
	require.NoError(t, err)
	require.Len(t, writers, 1)
	assert.Equal(t, "file", writers[0].Name())
	assert.True(t, strings.HasSuffix(Extension(FormatTable), ".txt"))

	cfg.Writers = []config.WriterDef{{Type: "kafka", Enabled: true}}
	_, err = factory.CreateWriters(cfg, logging.Discard().WithField("component", "test"))
	assert.Error(t, err)
}
