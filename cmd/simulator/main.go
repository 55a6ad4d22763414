package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dvbsim/receiver/internal/config"
	"github.com/dvbsim/receiver/internal/kernel"
	"github.com/dvbsim/receiver/internal/logging"
	"github.com/dvbsim/receiver/internal/model"
	"github.com/dvbsim/receiver/internal/trace"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)

	quiet := fs.BoolP("quiet", "q", false, "suppress info-level logging")
	traceDir := fs.StringP("trace-dir", "t", "", "directory to write CSV variable traces into (disabled if empty)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return errors.New("usage: simulator [flags] <config-dir>")
	}
	dir := fs.Arg(0)

	logger := logging.New(*quiet)
	runID := uuid.New()
	logger.Info("starting simulation run", "run", runID, "dir", dir)

	cfg := config.Load(dir, logger)
	if cfg.MainModel != "ModelBasic" {
		logger.Fatal("unknown model", "mainModel", cfg.MainModel)
	}

	recordDir := *traceDir
	if recordDir == "" {
		recordDir = dir
	}
	rec := trace.NewRecorder(recordDir, logger)

	m := model.NewModelBasic(cfg, logger, rec)
	m.Run(kernel.Time(cfg.RunTime))

	logger.Info("simulation run complete", "run", runID)
	return nil
}
