package utilities

import (
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// LogError logs err at error level. Codes and context attached with oops are
// flattened into structured fields; plain errors are logged as-is.
func LogError(logger *zap.SugaredLogger, msg string, err error) {
	if logger == nil || err == nil {
		return
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Errorw(msg, "err", err)
		return
	}
	kv := []any{"err", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		kv = append(kv, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		kv = append(kv, "context", ctx)
	}
	logger.Errorw(msg, kv...)
}
