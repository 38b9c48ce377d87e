package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ponte-cripto/notus-relay/internal/config"
	"github.com/ponte-cripto/notus-relay/internal/tools/walletctl"
)

func main() {
	defaults, err := config.LoadClient(config.DefaultEnvFiles...)
	if err != nil {
		exitf("load configuration: %v", err)
	}
	cfg, err := walletctl.ParseConfig(flag.CommandLine, os.Args[1:], defaults)
	if err != nil {
		exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := walletctl.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		exitf("%s: %v", cfg.Command, err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "walletctl: "+format+"\n", args...)
	os.Exit(1)
}
