package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the provider's deal-handling process",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "storage-path",
			Usage: "filesystem path this provider stores accepted piece data under (repeatable)",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()

		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		provider, host, closeProvider, err := buildProvider(repoPath, cctx.StringSlice("storage-path"))
		if err != nil {
			return err
		}
		defer closeProvider()
		log.Infof("listening as %s on %s", host.ID(), host.Addrs())

		provider.SubscribeToEvents(func(event storagemarket.ProviderEvent, deal storagemarket.MinerDeal) {
			log.Infof("deal %s: %s -> %s", deal.ProposalCID, storagemarket.ProviderEvents[event], storagemarket.DealStates[deal.State])
		})

		if err := provider.Start(ctx); err != nil {
			return xerrors.Errorf("starting provider: %w", err)
		}
		defer provider.Stop()

		log.Info("provider ready")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
		case <-ctx.Done():
		}
		return nil
	},
}

func homedirExpand(p string) (string, error) {
	if len(p) < 2 || p[:2] != "~/" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[2:]), nil
}
