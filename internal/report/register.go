package report

import (
	"TSNSpectra/internal/config"
	"TSNSpectra/internal/factory"
	"TSNSpectra/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	factory.RegisterWriter("file", func(def config.WriterDef, _ *logrus.Entry) (model.Writer, error) {
		w, err := NewFileWriter(def.File)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, log *logrus.Entry) (model.Writer, error) {
		w, err := NewClickHouseWriter(def.ClickHouse, log)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
