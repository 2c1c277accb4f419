package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPage       = "page"
	KeyPath       = "path"
	KeyReason     = "reason"
	KeyTag        = "tag"
	KeyPattern    = "pattern"
	KeyCycleID    = "cycle_id"
	KeyTrigger    = "trigger"
	KeyDurationMS = "duration_ms"
	KeyRendered   = "rendered"
	KeyReused     = "reused"
	KeyFailed     = "failed"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Page(url string) slog.Attr       { return slog.String(KeyPage, url) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Tag(t string) slog.Attr          { return slog.String(KeyTag, t) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func CycleID(id string) slog.Attr     { return slog.String(KeyCycleID, id) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Rendered(n int) slog.Attr        { return slog.Int(KeyRendered, n) }
func Reused(n int) slog.Attr          { return slog.Int(KeyReused, n) }
func Failed(n int) slog.Attr          { return slog.Int(KeyFailed, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
