// Package logger builds the gateway zap.Logger out of option setters.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// Option represents logger option setter.
	Option func(o *options)

	options struct {
		Options []zap.Option

		SamplingInitial    int
		SamplingThereafter int

		Format     string
		Level      string
		TraceLevel string
		Output     []string

		NoCaller     bool
		NoDisclaimer bool

		AppName    string
		AppVersion string
	}
)

const (
	formatJSON    = "json"
	formatConsole = "console"

	defaultSamplingInitial    = 100
	defaultSamplingThereafter = 100

	lvlInfo  = "info"
	lvlWarn  = "warn"
	lvlDebug = "debug"
	lvlError = "error"
	lvlFatal = "fatal"
	lvlPanic = "panic"
)

func safeLevel(lvl string) zap.AtomicLevel {
	switch strings.ToLower(lvl) {
	case lvlDebug:
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case lvlWarn:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case lvlError:
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	case lvlFatal:
		return zap.NewAtomicLevelAt(zap.FatalLevel)
	case lvlPanic:
		return zap.NewAtomicLevelAt(zap.PanicLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func defaults() *options {
	return &options{
		SamplingInitial:    defaultSamplingInitial,
		SamplingThereafter: defaultSamplingThereafter,

		Format:     formatConsole,
		Level:      lvlDebug,
		TraceLevel: lvlInfo,
		Output:     []string{"stdout"},
	}
}

// New returns new zap.Logger using all options specified, stdout is used
// for output unless WithOutput is given. The returned level can be changed
// at runtime.
func New(opts ...Option) (*zap.Logger, zap.AtomicLevel, error) {
	o := defaults()
	c := zap.NewProductionConfig()

	for _, opt := range opts {
		opt(o)
	}

	c.OutputPaths = o.Output
	c.ErrorOutputPaths = o.Output

	// zero disables sampling
	if o.SamplingInitial > 0 && o.SamplingThereafter > 0 {
		c.Sampling = &zap.SamplingConfig{
			Initial:    o.SamplingInitial,
			Thereafter: o.SamplingThereafter,
		}
	} else {
		c.Sampling = nil
	}

	c.Level = safeLevel(o.Level)
	traceLvl := safeLevel(o.TraceLevel)

	switch f := o.Format; strings.ToLower(f) {
	case formatConsole:
		c.Encoding = formatConsole
	default:
		c.Encoding = formatJSON
	}

	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if o.NoCaller {
		c.DisableCaller = true
	}

	// enable trace only for current log-level
	o.Options = append(o.Options, zap.AddStacktrace(traceLvl))

	l, err := c.Build(o.Options...)
	if err != nil {
		return nil, c.Level, err
	}

	if o.NoDisclaimer {
		return l, c.Level, nil
	}

	return l.With(
		zap.String("app_name", o.AppName),
		zap.String("app_version", o.AppVersion)), c.Level, nil
}
