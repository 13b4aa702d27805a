package model

// Writer persists a finished analysis report.
type Writer interface {
	// Write takes a report and persists it.
	Write(report *Report) error

	// Name identifies the writer in logs.
	Name() string
}
