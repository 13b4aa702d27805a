// Package analyzer runs the inference engines over a session snapshot and
// assembles the session report.
package analyzer

import (
	"errors"
	"fmt"
	"time"

	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/burst"
	"TSNSpectra/internal/engine/cbs"
	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	// StatusOK marks a class or window result that was computed.
	StatusOK = "ok"
	// StatusSkipped marks a CBS result the analysis mode left out.
	StatusSkipped = "skipped"
)

// Analyzer derives CBS estimates and the TAS schedule from a snapshot.
type Analyzer struct {
	mode          string
	segmenter     *burst.Segmenter
	estimator     *cbs.Estimator
	cycles        *tas.CycleDetector
	windows       *tas.WindowDetector
	gcl           *tas.GCLBuilder
	cycleOverride time.Duration
	log           *logrus.Entry
	now           func() time.Time
}

// New creates an analyzer from the analysis section of the config.
func New(cfg config.AnalysisConfig, log *logrus.Entry) (*Analyzer, error) {
	gap, err := config.ParseDuration(cfg.GapThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid gap threshold: %w", err)
	}
	override, err := config.ParseDuration(cfg.CycleOverride)
	if err != nil {
		return nil, fmt.Errorf("invalid cycle override: %w", err)
	}
	mode := cfg.Mode
	switch mode {
	case "":
		mode = config.ModeBoth
	case config.ModeCBS, config.ModeTAS, config.ModeBoth:
	default:
		return nil, fmt.Errorf("unknown analysis mode %q", mode)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Analyzer{
		mode:          mode,
		segmenter:     burst.New(gap, cfg.MaxBursts),
		estimator:     cbs.New(cfg.LinkSpeedBps),
		cycles:        tas.NewCycleDetector(nil, cfg.CycleBins),
		windows:       tas.NewWindowDetector(cfg.WindowBins, cfg.WindowThresholdRatio, cfg.MaxWindows),
		gcl:           tas.NewGCLBuilder(cfg.MaxGCLEntries),
		cycleOverride: override,
		log:           log,
		now:           time.Now,
	}, nil
}

// Analyze produces the report of snap. Classes without observations are left
// out; classes the engines cannot handle carry the reason in their status.
func (a *Analyzer) Analyze(snap *model.Snapshot) *model.Report {
	report := &model.Report{
		SessionID:    snap.SessionID,
		Mode:         a.mode,
		CreatedAt:    a.now().UTC(),
		LinkSpeedBps: a.estimator.LinkSpeedBps(),
		Invalid:      snap.Invalid,
	}
	if snap.Invalid > 0 {
		a.log.WithField("invalid", snap.Invalid).Warn("Observations with an out-of-range class were discarded")
	}

	for i := range snap.Classes {
		data := &snap.Classes[i]
		if len(data.Observations) == 0 && data.TxCount == 0 {
			continue
		}
		report.Classes = append(report.Classes, a.analyzeClass(data))
	}

	if a.mode == config.ModeCBS {
		report.TASError = "tas analysis disabled by mode " + a.mode
		return report
	}
	tasReport, err := a.analyzeSchedule(snap)
	if err != nil {
		a.log.WithError(err).Info("No TAS schedule inferred")
		report.TASError = err.Error()
	} else {
		report.TAS = tasReport
	}
	return report
}

func (a *Analyzer) analyzeClass(data *model.ClassData) model.ClassReport {
	log := a.log.WithField("class", data.Class)
	cr := model.ClassReport{
		Class:        data.Class,
		Observations: len(data.Observations),
		TotalBytes:   data.TotalBytes,
		TxCount:      data.TxCount,
		Dropped:      data.Dropped,
	}
	if data.Truncated() {
		log.WithField("dropped", data.Dropped).Warn("Sample store was full, observations were dropped")
	}
	iv := burst.Intervals(data.Observations)
	cr.AvgIntervalUs = iv.AvgUs
	cr.StddevIntervalUs = iv.StddevUs
	if a.mode == config.ModeTAS {
		cr.Status = StatusSkipped
		return cr
	}

	res := a.segmenter.Segment(data.Observations)
	cr.Bursts = len(res.Bursts)
	cr.BurstsTruncated = res.Truncated
	if res.Truncated {
		log.WithField("bursts", len(res.Bursts)).Warn("Burst limit reached, last burst was extended")
	}

	est, err := a.estimator.Estimate(data, res.Bursts)
	if err != nil {
		cr.Status = err.Error()
		return cr
	}
	cr.Estimate = &est
	cr.Status = StatusOK
	log.WithFields(logrus.Fields{
		"measured_bps": est.MeasuredBps,
		"shaped":       est.IsShaped,
		"confidence":   est.Confidence,
	}).Debug("CBS estimate computed")
	return cr
}

func (a *Analyzer) analyzeSchedule(snap *model.Snapshot) (*model.TASReport, error) {
	cycle, err := a.cycles.Detect(snap.Classes[:], a.cycleOverride)
	if err != nil {
		return nil, err
	}

	out := &model.TASReport{
		CycleNs:    cycle.CycleNs,
		Overridden: cycle.Overridden,
		Score:      cycle.Score,
		Candidates: cycle.Candidates,
	}
	origin := snap.Origin()

	var windows [model.NumClasses][]model.GateWindow
	for i := range snap.Classes {
		data := &snap.Classes[i]
		if len(data.Observations) == 0 {
			continue
		}
		cw := model.ClassWindows{Class: data.Class, Status: StatusOK}
		res, err := a.windows.Detect(data, origin, cycle.CycleNs)
		switch {
		case errors.Is(err, model.ErrInsufficientData):
			cw.Status = err.Error()
		case err != nil:
			return nil, err
		default:
			cw.Windows = res.Windows
			cw.Truncated = res.Truncated
			windows[i] = res.Windows
			if res.Truncated {
				a.log.WithField("class", data.Class).Warn("Window limit reached, later windows were dropped")
			}
		}
		out.Windows = append(out.Windows, cw)
	}

	gcl, err := a.gcl.Build(windows, cycle.CycleNs)
	if err != nil {
		return nil, err
	}
	out.GCL = gcl.Entries
	out.GCLTruncated = gcl.Truncated
	if gcl.Truncated {
		a.log.WithField("entries", len(gcl.Entries)).Warn("Gate control list limit reached, tail folded into last entry")
	}
	return out, nil
}

// Document returns the serialised gate control list of report.
func Document(report *model.Report) (*tas.Document, error) {
	if report.TAS == nil {
		return nil, fmt.Errorf("session %s has no schedule: %w", report.SessionID, model.ErrNoPeriodicity)
	}
	return tas.NewDocument(report.TAS.GCL, report.TAS.CycleNs)
}
