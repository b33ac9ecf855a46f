package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/storagemarketcore/build"
)

var log = logging.Logger("storage-client")

func main() {
	logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:    "storage-client",
		Usage:   "propose and track storage deals with a provider",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "path to this client's repo directory",
				Value:   "~/.storage-client",
				EnvVars: []string{"STORAGE_CLIENT_PATH"},
			},
		},
		Commands: []*cli.Command{
			proposeCmd,
			listDealsCmd,
			getDealCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Warnf("%+v", err)
		os.Exit(1)
	}
}
