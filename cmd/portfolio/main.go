package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	portfoliocmd "github.com/louisbranch/stockfolio/internal/cmd/portfolio"
)

func main() {
	cfg, err := portfoliocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = portfoliocmd.Run(ctx, cfg, os.Stdout)
	if err == nil {
		return
	}
	portfoliocmd.ReportError(os.Stderr, err)
	stop()
	os.Exit(portfoliocmd.ExitCode(err))
}
