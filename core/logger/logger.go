package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// ContextExtractor pulls a request-scoped attribute out of ctx.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// Option configures New.
type Option func(*options)

type options struct {
	level       slog.Leveler
	json        bool
	output      io.Writer
	attrs       []slog.Attr
	extractors  []ContextExtractor
	handlerOpts *slog.HandlerOptions
}

// New builds a slog.Logger. Defaults: text format, info level, stdout.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level:  slog.LevelInfo,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(o)
	}

	ho := o.handlerOpts
	if ho == nil {
		ho = &slog.HandlerOptions{}
	}
	if ho.Level == nil {
		ho.Level = o.level
	}

	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(o.output, ho)
	} else {
		h = slog.NewTextHandler(o.output, ho)
	}
	if len(o.attrs) > 0 {
		h = h.WithAttrs(o.attrs)
	}
	if len(o.extractors) > 0 {
		h = &contextHandler{Handler: h, extractors: o.extractors}
	}
	return slog.New(h)
}

// SetAsDefault installs l as the process-wide slog default.
func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// WithDevelopment configures debug-level text output tagged with the app name.
func WithDevelopment(app string) Option {
	return func(o *options) {
		o.level = slog.LevelDebug
		o.json = false
		o.attrs = append(o.attrs, slog.String("app", app), slog.String("env", "development"))
	}
}

// WithStaging configures info-level JSON output tagged with the app name.
func WithStaging(app string) Option {
	return func(o *options) {
		o.level = slog.LevelInfo
		o.json = true
		o.attrs = append(o.attrs, slog.String("app", app), slog.String("env", "staging"))
	}
}

// WithProduction configures info-level JSON output tagged with the app name.
func WithProduction(app string) Option {
	return func(o *options) {
		o.level = slog.LevelInfo
		o.json = true
		o.attrs = append(o.attrs, slog.String("app", app), slog.String("env", "production"))
	}
}

func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

func WithJSONFormatter() Option {
	return func(o *options) { o.json = true }
}

func WithTextFormatter() Option {
	return func(o *options) { o.json = false }
}

func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithAttr adds attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// WithContextValue logs ctx.Value(ctxKey) under attrKey when present.
func WithContextValue(attrKey string, ctxKey any) Option {
	return WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
		v := ctx.Value(ctxKey)
		if v == nil {
			return slog.Attr{}, false
		}
		return slog.Any(attrKey, v), true
	})
}

func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) { o.extractors = append(o.extractors, extractors...) }
}

// WithHandlerOptions overrides the slog handler options. Level falls back to
// WithLevel when left nil.
func WithHandlerOptions(ho *slog.HandlerOptions) Option {
	return func(o *options) { o.handlerOpts = ho }
}

type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		for _, extract := range h.extractors {
			if attr, ok := extract(ctx); ok {
				r.AddAttrs(attr)
			}
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}
