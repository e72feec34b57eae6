package hostfuncs

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hayride-dev/hayride-go/contract"
)

// VersionResponse reports the runtime release.
type VersionResponse struct {
	Version string `json:"version"`
}

// LogRequest is a structured log record emitted by a guest.
type LogRequest struct {
	Attrs   map[string]any `json:"attrs,omitempty"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
}

// CoreBundle returns the hayride:core functions: version#latest and log#log.
// Guest log records are written to logger tagged with the calling silo.
func CoreBundle(version string, logger *slog.Logger) HostFuncBundle {
	if logger == nil {
		logger = slog.Default()
	}
	return HandlerSet{
		qualify(contract.CoreVersion, "latest"): NewJSONHandler(func(_ context.Context, _ Empty) VersionResponse {
			return VersionResponse{Version: version}
		}),
		qualify(contract.CoreLog, "log"): NewJSONHandler(func(ctx context.Context, req LogRequest) Empty {
			caller, _ := CallerFrom(ctx)
			args := make([]any, 0, 2+2*len(req.Attrs))
			args = append(args, "silo", caller)
			for k, v := range req.Attrs {
				args = append(args, k, v)
			}
			logger.Log(ctx, parseLevel(req.Level), req.Message, args...)
			return Empty{}
		}),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
