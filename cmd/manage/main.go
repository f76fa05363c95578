package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/flasky/internal/manage"
	"github.com/dmitrijs2005/flasky/internal/server"
	"github.com/dmitrijs2005/flasky/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	stopMail := app.StartMail(ctx)
	m := manage.New(app, app.Accounts, app.Roles, cfg.AdminEmail, os.Stdin, os.Stdout)
	err = m.Run(ctx, manage.Positional(os.Args[1:]))
	stopMail()
	_ = app.Close()

	if err != nil {
		log.Fatalf("%v", err)
	}

}
