package main

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/fwsnd/cli"
)

func main() {
	level := hclog.Info

	// FWSND_DEBUG takes a level name; any other non-empty value means trace.
	if v := os.Getenv("FWSND_DEBUG"); v != "" {
		level = hclog.LevelFromString(v)
		if level == hclog.NoLevel {
			level = hclog.Trace
		}
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "fwsnd",
		Level: level,
		Color: hclog.AutoColor,

		ColorHeaderAndFields: true,
	})

	log.Debug("log level configured", "level", level)

	c, err := cli.NewCLI(log, os.Args[1:])
	if err != nil {
		log.Error("error creating CLI", "error", err)
		os.Exit(1)
	}

	code, err := c.Run()
	if err != nil {
		log.Error("error running CLI", "error", err)
		os.Exit(1)
	}

	os.Exit(code)
}
