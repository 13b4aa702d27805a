package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"TSNSpectra/internal/analyzer"
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/model"
)

// FileWriter stores each report under <root>/<session-id>/, together with
// the gate control list document when a schedule was inferred.
type FileWriter struct {
	rootPath string
	format   string
}

// NewFileWriter creates a file writer.
func NewFileWriter(cfg config.FileWriterConfig) (*FileWriter, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("file writer needs a root_path")
	}
	switch cfg.Format {
	case "", FormatJSON, FormatYAML, FormatTable:
	default:
		return nil, fmt.Errorf("unsupported report format: %s", cfg.Format)
	}
	return &FileWriter{rootPath: cfg.RootPath, format: cfg.Format}, nil
}

// Name implements model.Writer.
func (w *FileWriter) Name() string {
	return "file"
}

// Write implements model.Writer.
func (w *FileWriter) Write(r *model.Report) error {
	dir := filepath.Join(w.rootPath, r.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if err := writeFile(filepath.Join(dir, "report"+Extension(w.format)), func(f *os.File) error {
		return Render(f, r, w.format)
	}); err != nil {
		return err
	}

	doc, err := analyzer.Document(r)
	if errors.Is(err, model.ErrNoPeriodicity) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to build gcl document: %w", err)
	}
	return writeFile(filepath.Join(dir, "gcl.json"), func(f *os.File) error {
		return tas.Encode(f, doc)
	})
}

func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
