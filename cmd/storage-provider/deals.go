package main

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

var listDealsCmd = &cli.Command{
	Name:  "list-deals",
	Usage: "list every deal this provider has ever tracked",
	Description: "Opens the provider's repo the same way run does, so it must not be used " +
		"while run is active against the same repo; the underlying leveldb datastore allows " +
		"only one open handle at a time.",
	Action: func(cctx *cli.Context) error {
		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		provider, _, closeProvider, err := buildProvider(repoPath, nil)
		if err != nil {
			return err
		}
		defer closeProvider()

		deals, err := provider.ListLocalDeals()
		if err != nil {
			return xerrors.Errorf("listing deals: %w", err)
		}

		for _, deal := range deals {
			log.Infof("%s  client=%s  state=%s", deal.ProposalCID, deal.Client, storagemarket.DealStates[deal.State])
		}
		return nil
	},
}

var getDealCmd = &cli.Command{
	Name:      "get-deal",
	Usage:     "print a single deal record by proposal CID",
	ArgsUsage: "<proposal-cid>",
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return xerrors.New("expected a single proposal CID argument")
		}

		proposalCid, err := cid.Decode(cctx.Args().First())
		if err != nil {
			return xerrors.Errorf("parsing proposal CID: %w", err)
		}

		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		provider, _, closeProvider, err := buildProvider(repoPath, nil)
		if err != nil {
			return err
		}
		defer closeProvider()

		deal, err := provider.GetLocalDeal(proposalCid)
		if err != nil {
			return err
		}

		log.Infof("proposal:  %s", deal.ProposalCID)
		log.Infof("client:    %s", deal.Client)
		log.Infof("state:     %s", storagemarket.DealStates[deal.State])
		log.Infof("piece:     %s (%d bytes)", deal.Proposal.PieceCID, deal.Proposal.PieceSize)
		log.Infof("deal ID:   %d", deal.DealID)
		if deal.Message != "" {
			log.Infof("message:   %s", deal.Message)
		}
		return nil
	},
}
