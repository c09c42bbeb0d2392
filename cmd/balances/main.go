package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/OlympusDAO/token-holder-balances/app/balances"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	app := balances.Initialize(ctx)

	app.Start(ctx)
}
