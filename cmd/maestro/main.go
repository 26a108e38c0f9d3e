package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/maestro/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// Restart when the binary is rebuilt. Off by default since a restart
	// drops the stdio stream under `maestro mcp`.
	if os.Getenv("MAESTRO_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "maestro:", err)
		os.Exit(1)
	}
}
