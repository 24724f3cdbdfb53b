// Command gateway is the sensor data gateway's process entry point: it
// resolves configuration, wires up structured logging and the
// operational log channel, parses the sensor->room map, and runs the
// orchestrator until the session ends or an operator signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensorgw/gateway/internal/config"
	"github.com/sensorgw/gateway/internal/datamgr"
	"github.com/sensorgw/gateway/internal/logging"
	"github.com/sensorgw/gateway/internal/logwriter"
	"github.com/sensorgw/gateway/internal/orchestrator"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if config.IsUsageError(err) {
			fmt.Fprintln(os.Stderr, "usage: gateway PORT")
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	baseLog, err := logging.New(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging: ", err)
		return 1
	}
	defer baseLog.Sync()
	log := baseLog.Sugar()

	rooms, err := loadRoomMap(cfg.MapFile)
	if err != nil {
		log.Errorw("failed to load sensor->room map", "file", cfg.MapFile, "error", err)
		return 1
	}

	alerts, err := logwriter.Open(cfg.LogFile, cfg.LogLength)
	if err != nil {
		log.Errorw("failed to open log channel", "error", err)
		return 1
	}
	defer alerts.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o := orchestrator.New(orchestrator.Config{
		Port:         cfg.Port,
		Timeout:      cfg.Timeout,
		DBPath:       cfg.DBFile,
		TableName:    cfg.TableName,
		ClearDB:      cfg.ClearDatabase,
		SQLAttempts:  cfg.SQLAttempts,
		RoomMap:      rooms,
		RunAvgLength: cfg.RunAvgLength,
		MinTemp:      cfg.MinTemp,
		MaxTemp:      cfg.MaxTemp,
		Log:          baseLog,
		Alerts:       alerts,
	})

	if err := o.Run(ctx); err != nil {
		log.Errorw("gateway exited with error", "error", err)
		return 1
	}
	return 0
}

func loadRoomMap(path string) (map[uint16]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return datamgr.ParseMapFile(f)
}
