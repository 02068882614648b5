package main

import (
	"log/slog"

	"github.com/danish296/Code-Drop/internal/cli"
	"github.com/danish296/Code-Drop/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	cli.Execute()
}
