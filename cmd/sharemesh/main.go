package main

import (
	"log/slog"

	"github.com/sharemesh/sharemesh/cmd/sharemesh/commands"
	"github.com/sharemesh/sharemesh/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	commands.Execute()
}
