package main

import (
	"context"
	"log"
	"os"

	"github.com/mvailland/latchkey/internal/buildinfo"
	"github.com/mvailland/latchkey/internal/client/cli"
	"github.com/mvailland/latchkey/internal/client/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
