// Package logger is the structured logger of the application layers.
//
// It sits on top of log/slog so that the typed field helpers used by
// commands, queries and sagas end up in the same handler as the
// infrastructure packages that log through *slog.Logger directly.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Level aliases slog.Level so callers need not import log/slog.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError

	// levelOff is above every level that is ever logged.
	levelOff = slog.Level(100)
)

// ParseLevel accepts debug, info, warn/warning and error in any case.
// Anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is one key/value pair of a log line.
type Field = slog.Attr

func String(key, value string) Field          { return slog.String(key, value) }
func Int(key string, value int) Field         { return slog.Int(key, value) }
func Int64(key string, value int64) Field     { return slog.Int64(key, value) }
func Float64(key string, value float64) Field { return slog.Float64(key, value) }
func Bool(key string, value bool) Field       { return slog.Bool(key, value) }
func Any(key string, value any) Field         { return slog.Any(key, value) }

// Duration is rendered as text ("1.5s") rather than nanoseconds.
func Duration(key string, value time.Duration) Field {
	return slog.String(key, value.String())
}

// Err returns the "error" field. A nil error yields an empty field that
// handlers drop.
func Err(err error) Field {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Options configures New.
type Options struct {
	Output io.Writer
	Level  Level

	// Format is "json" (default) or "text".
	Format string

	// AddSource records the file:line of the call site.
	AddSource bool
}

// Logger writes leveled lines with typed fields. The zero value is not
// usable; build one with New, NewFromConfig or NewNop.
type Logger struct {
	handler slog.Handler
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	ho := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var h slog.Handler
	if opts.Format == "text" {
		h = slog.NewTextHandler(opts.Output, ho)
	} else {
		h = slog.NewJSONHandler(opts.Output, ho)
	}
	return &Logger{handler: h}
}

// NewFromHandler wraps an existing slog handler.
func NewFromHandler(h slog.Handler) *Logger {
	return &Logger{handler: h}
}

// NewFromConfig builds a JSON logger on stdout tagged with the service name.
func NewFromConfig(level, service string) *Logger {
	return New(Options{Level: ParseLevel(level), AddSource: true}).
		With(String("service", service))
}

// NewNop returns a logger that writes nothing.
func NewNop() *Logger {
	return New(Options{Output: io.Discard, Level: levelOff})
}

// Default is the logger used when none was configured. It follows
// slog.Default so that whatever the process set up there applies.
func Default() *Logger {
	return &Logger{handler: slog.Default().Handler()}
}

// Slog exposes the logger for packages that take a *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

// With returns a child logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{handler: l.handler.WithAttrs(fields)}
}

// WithGroup nests the fields of later calls under name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{handler: l.handler.WithGroup(name)}
}

// Enabled reports whether lines at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.handler.Enabled(context.Background(), level)
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, log and the exported method
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.AddAttrs(fields...)
	_ = l.handler.Handle(ctx, r)
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or Default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Default()
}

// RequestIDKey is the field carrying the HTTP request id.
const RequestIDKey = "request_id"

// WithRequestID tags every line with the request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

// Registration fields.
func UserID(id fmt.Stringer) Field      { return String("user_id", id.String()) }
func UserRef(ref string) Field          { return String("user_ref", ref) }
func Email(email string) Field          { return String("email", email) }
func Step(step int) Field               { return Int("step", step) }
func StepName(name string) Field        { return String("step_name", name) }
func PaymentMethod(method string) Field { return String("payment_method", method) }
func TransactionID(id string) Field     { return String("transaction_id", id) }
func AmountCents(cents int64) Field     { return Int64("amount_cents", cents) }
func CountryCode(code string) Field     { return String("country_code", code) }
func Component(name string) Field       { return String("component", name) }
func Operation(name string) Field       { return String("operation", name) }
func Latency(d time.Duration) Field     { return Duration("latency", d) }
