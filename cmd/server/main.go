package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/flasky/internal/server"
	"github.com/dmitrijs2005/flasky/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Fatalf("flasky: %v", err)
	}

	err = app.Run(context.Background())
	if cerr := app.Close(); cerr != nil {
		log.Printf("flasky: close: %v", cerr)
	}

	if err != nil {
		log.Printf("flasky: %v", err)
		os.Exit(1)
	}

}
