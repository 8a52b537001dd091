package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type empty int

const (
	devNull = empty(0)

	defaultHealthInterval  = 15 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

func (empty) Read([]byte) (int, error) { return 0, io.EOF }

func settings() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix(Prefix)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// flags setup:
	flags := pflag.NewFlagSet("commandline", pflag.ExitOnError)
	flags.SortFlags = false

	flags.Bool("pprof", false, "enable pprof")
	flags.Bool("metrics", false, "enable prometheus")

	help := flags.BoolP("help", "h", false, "show help")
	version := flags.BoolP("version", "v", false, "show version")
	config := flags.StringP("config", "c", "", "path to a yaml configuration file")

	flags.String("listen_address", "0.0.0.0:8082", "HTTP Gateway listen address")
	flags.String("catalog.path", "", "catalog database directory")
	flags.Bool("catalog.in_memory", false, "keep the catalog in memory, for testing only")
	flags.String("engine.hostname", "", "name of this host in media locks, system hostname when empty")
	flags.Duration("health_interval", defaultHealthInterval, "engine health probe interval")

	// set prefers:
	v.Set("app.name", "hsm-gw")
	v.Set("app.version", Version)

	// set defaults:

	// logger:
	v.SetDefault("logger.level", "debug")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.trace_level", "fatal")
	v.SetDefault("logger.no_caller", false)
	v.SetDefault("logger.no_disclaimer", true)
	v.SetDefault("logger.sampling.initial", 1000)
	v.SetDefault("logger.sampling.thereafter", 1000)

	// web-server:
	v.SetDefault("web.read_buffer_size", 4096)
	v.SetDefault("web.write_buffer_size", 4096)
	v.SetDefault("web.read_timeout", time.Second*15)
	v.SetDefault("web.write_timeout", time.Minute)
	v.SetDefault("web.stream_request_body", true)
	v.SetDefault("web.max_request_body_size", 4*1024*1024*1024)
	v.SetDefault("web.shutdown_timeout", defaultShutdownTimeout)

	// transfers:
	v.SetDefault("transfer.temp_dir", "")
	v.SetDefault("transfer.default_timestamp", false)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 0)

	// engine:
	v.SetDefault("engine.default_family", "dir")
	v.SetDefault("engine.default_layout", "raid1")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	if err := flags.Parse(os.Args); err != nil {
		panic(err)
	}

	switch {
	case help != nil && *help:
		fmt.Printf("HSM HTTP Gateway %s (%s)\n", Version, Build)
		flags.PrintDefaults()
		os.Exit(0)
	case version != nil && *version:
		fmt.Printf("HSM HTTP Gateway %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	if config != nil && *config != "" {
		v.SetConfigFile(*config)
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	} else if err := v.ReadConfig(devNull); err != nil {
		panic(err)
	}

	return v
}
