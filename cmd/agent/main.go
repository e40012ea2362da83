package main

import (
	"context"

	"github.com/screenport/agent/pkg/agent"
	config "github.com/screenport/agent/pkg/config/agent"
	"github.com/screenport/agent/pkg/logger"
	"github.com/screenport/agent/pkg/os"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config load failed")
	}
	conf.WithFlags(flag.CommandLine)
	flag.Parse()

	log := logger.NewConsole(conf.Agent.Debug, "a", false)
	log.Info().Msgf("version %s", Version)
	if conf.Agent.Debug {
		log.Debug().Msgf("config: %+v", conf)
	}

	app, err := agent.New(conf, nil, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("agent init failed")
	}
	if err := app.Start(); err != nil {
		log.Warn().Err(err).Msg("agent start degraded")
	}

	<-os.ExpectTermination()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown errors")
	}
}
