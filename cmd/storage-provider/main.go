package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/storagemarketcore/build"
)

var log = logging.Logger("storage-provider")

func main() {
	logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:    "storage-provider",
		Usage:   "run the provider side of a storage deal",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "path to this provider's repo directory",
				Value:   "~/.storage-provider",
				EnvVars: []string{"STORAGE_PROVIDER_PATH"},
			},
		},
		Commands: []*cli.Command{
			runCmd,
			setAskCmd,
			getAskCmd,
			listDealsCmd,
			getDealCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Warnf("%+v", err)
		os.Exit(1)
	}
}
