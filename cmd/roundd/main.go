package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lastword-games/roundd/internal/config"
	httpservice "github.com/lastword-games/roundd/internal/interface/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := cli.NewApp()

	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Name = "roundd"
	app.Usage = "last comment wins round engine"
	app.Commands = append(
		app.Commands,
		serveCmd,
		roundCmd,
		runDueCmd,
		adminTokenCmd,
	)
	app.Flags = []cli.Flag{urlFlag, tokenFlag}
	app.Action = serveAction

	if err := app.Run(os.Args); err != nil {
		fmt.Println(fmt.Errorf("error: %v", err))
		os.Exit(1)
	}
}

func serveAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}
	log.Debugf("loaded config:\n%s", cfg)

	appSvc, err := cfg.AppService()
	if err != nil {
		return err
	}

	svc, err := httpservice.NewService(httpservice.Config{
		Port:        cfg.Port,
		AdminSecret: cfg.AdminJwtSecret,
	}, appSvc)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
