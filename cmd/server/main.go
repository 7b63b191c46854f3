package main

import (
	"context"
	"log"

	"github.com/smartctf/filevault/internal/server"
	"github.com/smartctf/filevault/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	app := server.NewApp(cfg)
	if err := app.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
