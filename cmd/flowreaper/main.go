package main

import (
	"github.com/3leaps/flowreaper/internal/cmd"
)

// Build metadata injected via ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
