package main

import (
	"github.com/nspcc-dev/hsm-http-gw/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger(v *viper.Viper) *zap.Logger {
	options := []logger.Option{
		logger.WithLevel(v.GetString("logger.level")),
		logger.WithTraceLevel(v.GetString("logger.trace_level")),
		logger.WithFormat(v.GetString("logger.format")),
		logger.WithSamplingInitial(v.GetInt("logger.sampling.initial")),
		logger.WithSamplingThereafter(v.GetInt("logger.sampling.thereafter")),
		logger.WithAppName(v.GetString("app.name")),
		logger.WithAppVersion(v.GetString("app.version")),
	}

	if v.GetBool("logger.no_caller") {
		options = append(options, logger.WithoutCaller())
	}

	if v.GetBool("logger.no_disclaimer") {
		options = append(options, logger.WithoutDisclaimer())
	}

	if out := v.GetStringSlice("logger.output"); len(out) > 0 {
		options = append(options, logger.WithOutput(out...))
	}

	l, _, err := logger.New(options...)
	if err != nil {
		panic(err)
	}

	return l
}
