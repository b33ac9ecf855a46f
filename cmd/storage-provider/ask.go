package main

import (
	"path/filepath"

	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	ds "github.com/ipfs/go-datastore"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/filecoin-project/storagemarketcore/cmd/internal/devnode"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/storedask"
)

func openAsk(repoPath string) (*storedask.StoredAsk, address.Address, error) {
	cfg, err := loadConfig(repoPath)
	if err != nil {
		return nil, address.Undef, err
	}

	minerAddr, err := address.NewFromString(cfg.MinerActor)
	if err != nil {
		return nil, address.Undef, xerrors.Errorf("parsing miner-actor %q: %w", cfg.MinerActor, err)
	}
	workerAddr, err := address.NewFromString(cfg.Worker)
	if err != nil {
		return nil, address.Undef, xerrors.Errorf("parsing worker %q: %w", cfg.Worker, err)
	}

	askDs, err := levelds.NewDatastore(filepath.Join(repoPath, "ask"), nil)
	if err != nil {
		return nil, address.Undef, xerrors.Errorf("opening ask datastore: %w", err)
	}

	node := devnode.New(minerAddr, workerAddr)
	ask, err := storedask.NewStoredAsk(askDs, ds.NewKey("/storage-ask"), node, minerAddr)
	if err != nil {
		return nil, address.Undef, err
	}
	return ask, minerAddr, nil
}

var setAskCmd = &cli.Command{
	Name:      "set-ask",
	Usage:     "set this provider's advertised price and duration",
	ArgsUsage: "<price-attofil-per-gib-epoch>",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "duration", Usage: "epochs the ask is valid for", Value: int64(storedask.DefaultDuration)},
		&cli.Int64Flag{Name: "verified-price", Usage: "price for verified deals, attoFIL/GiB/epoch", Value: storedask.DefaultVerifiedPrice.Int64()},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return xerrors.New("expected a single price argument")
		}

		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		ask, _, err := openAsk(repoPath)
		if err != nil {
			return err
		}

		price, err := big.FromString(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("parsing price: %w", err)
		}
		verifiedPrice, err := big.FromString(cctx.String("verified-price"))
		if err != nil {
			return xerrors.Errorf("parsing verified-price: %w", err)
		}

		if err := ask.SetAsk(price, verifiedPrice, abi.ChainEpoch(cctx.Int64("duration"))); err != nil {
			return xerrors.Errorf("setting ask: %w", err)
		}

		log.Infof("ask set: %s attoFIL/GiB/epoch for %d epochs", price, cctx.Int64("duration"))
		return nil
	},
}

var getAskCmd = &cli.Command{
	Name:  "get-ask",
	Usage: "print this provider's current advertised ask",
	Action: func(cctx *cli.Context) error {
		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		ask, minerAddr, err := openAsk(repoPath)
		if err != nil {
			return err
		}

		signed := ask.GetAsk(minerAddr)
		if signed == nil || signed.Ask == nil {
			return xerrors.New("no ask set; run set-ask first")
		}

		a := signed.Ask
		log.Infof("price: %s attoFIL/GiB/epoch", a.Price)
		log.Infof("verified price: %s attoFIL/GiB/epoch", a.VerifiedPrice)
		log.Infof("min piece size: %d", a.MinPieceSize)
		log.Infof("max piece size: %d", a.MaxPieceSize)
		log.Infof("expiry: epoch %d", a.Expiry)
		return nil
	},
}
