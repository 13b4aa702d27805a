// Package report renders session reports and persists them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"TSNSpectra/internal/model"

	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// Extension returns the file extension used for format.
func Extension(format string) string {
	switch format {
	case FormatYAML:
		return ".yaml"
	case FormatTable:
		return ".txt"
	default:
		return ".json"
	}
}

// Render writes r to w in the given format.
func Render(w io.Writer, r *model.Report, format string) error {
	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report to json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report to yaml: %w", err)
		}
		return enc.Close()
	case FormatTable:
		return renderTable(w, r)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

func renderTable(w io.Writer, r *model.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Session %s\t%s\n", r.SessionID, r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.Mode != "" {
		fmt.Fprintf(tw, "Mode\t%s\n", r.Mode)
	}
	fmt.Fprintf(tw, "Link speed\t%s\n\n", formatBps(r.LinkSpeedBps))

	fmt.Fprintln(tw, "TC\tPACKETS\tBYTES\tTX\tIVL US (AVG/SD)\tBURSTS\tRATE\tBW %\tSHAPED\tIDLE SLOPE\tSEND SLOPE\tHI CREDIT\tLO CREDIT\tSTATUS")
	for _, c := range r.Classes {
		bursts := fmt.Sprint(c.Bursts)
		if c.BurstsTruncated {
			bursts += "+"
		}
		ivl := fmt.Sprintf("%.1f/%.1f", c.AvgIntervalUs, c.StddevIntervalUs)
		if c.Estimate == nil {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t-\t-\t-\t-\t-\t-\t-\t%s\n",
				c.Class, c.Observations, c.TotalBytes, c.TxCount, ivl, bursts, c.Status)
			continue
		}
		e := c.Estimate
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\t%.2f\t%v\t%s\t%s\t%.0f\t%.0f\t%s\n",
			c.Class, c.Observations, c.TotalBytes, c.TxCount, ivl, bursts,
			formatBps(e.MeasuredBps), e.BandwidthPercent, e.IsShaped, formatBps(e.IdleSlopeBps), formatBps(e.SendSlopeBps),
			e.HiCreditBytes, e.LoCreditBytes, c.Status)
	}
	fmt.Fprintln(tw)

	if r.TAS == nil {
		fmt.Fprintf(tw, "TAS\t%s\n", r.TASError)
		return tw.Flush()
	}
	t := r.TAS
	source := "detected"
	if t.Overridden {
		source = "configured"
	}
	fmt.Fprintf(tw, "Cycle\t%d ns (%s, score %.3f)\n", t.CycleNs, source, t.Score)
	for _, cw := range t.Windows {
		spans := make([]string, 0, len(cw.Windows))
		for _, gw := range cw.Windows {
			spans = append(spans, fmt.Sprintf("[%d+%d)", gw.StartOffsetNs, gw.DurationNs))
		}
		if len(spans) == 0 {
			spans = append(spans, cw.Status)
		}
		if cw.Truncated {
			spans = append(spans, "(truncated)")
		}
		fmt.Fprintf(tw, "TC%d windows\t%s\n", cw.Class, strings.Join(spans, " "))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "#\tGATES\tINTERVAL NS")
	for i, e := range t.GCL {
		fmt.Fprintf(tw, "%d\t%08b\t%d\n", i, e.GateStates, e.DurationNs)
	}
	if t.GCLTruncated {
		fmt.Fprintln(tw, "\t(truncated)\t")
	}
	return tw.Flush()
}

func formatBps(bps float64) string {
	switch {
	case bps >= 1e9 || bps <= -1e9:
		return fmt.Sprintf("%.3f Gbps", bps/1e9)
	case bps >= 1e6 || bps <= -1e6:
		return fmt.Sprintf("%.3f Mbps", bps/1e6)
	case bps >= 1e3 || bps <= -1e3:
		return fmt.Sprintf("%.3f kbps", bps/1e3)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}
