package main

import (
	"errors"
	"fmt"
	"marketnews/internal/app"
	"marketnews/internal/config"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid config: %v\n", err)
		return 1
	}
	if cfg.CheckOnly {
		fmt.Printf("Configuration OK: store=%s feeds=%d newsapi=%t\n", cfg.Store.Backend, len(cfg.Feeds), cfg.NewsAPI.Key != "")
		return 0
	}
	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not start collector: %v\n", err)
		return 1
	}
	defer a.Close()
	if err := a.Run(); err != nil {
		return 1
	}
	return 0
}
