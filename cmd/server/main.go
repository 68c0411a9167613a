package main

import (
	"context"
	"log"
	"os"

	"github.com/mvailland/latchkey/internal/buildinfo"
	"github.com/mvailland/latchkey/internal/server"
	"github.com/mvailland/latchkey/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
