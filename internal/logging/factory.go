package logging

import (
	"io"
	"log/slog"

	"go.uber.org/zap"
)

// New builds the logger selected by format: "zap" for a zap production
// logger, anything else for slog's JSON handler writing to w.
func New(format string, w io.Writer) (Logger, error) {
	if format == "zap" {
		l, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		return NewZapLogger(l), nil
	}
	return NewSlogLogger(slog.New(slog.NewJSONHandler(w, nil))), nil
}
