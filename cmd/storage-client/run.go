package main

import (
	"strconv"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

var proposeCmd = &cli.Command{
	Name:      "propose",
	Usage:     "propose a storage deal with a provider and begin tracking it",
	ArgsUsage: "<provider-multiaddr-with-/p2p/peer-id> <provider-actor-address> <piece-cid> <piece-size>",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "start-epoch", Usage: "epoch the deal's sector must be sealed by", Value: 1000},
		&cli.Int64Flag{Name: "duration", Usage: "deal duration in epochs", Value: 500000},
		&cli.StringFlag{Name: "price", Usage: "total price per epoch, attoFIL", Value: "1"},
		&cli.StringFlag{Name: "provider-collateral", Usage: "provider collateral, attoFIL", Value: "0"},
		&cli.StringFlag{Name: "client-collateral", Usage: "client collateral, attoFIL", Value: "0"},
		&cli.BoolFlag{Name: "fast-retrieval", Usage: "advertise this deal for fast retrieval", Value: true},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 4 {
			return xerrors.New("expected provider-multiaddr, provider-actor-address, piece-cid, and piece-size")
		}

		providerMaddr, err := ma.NewMultiaddr(cctx.Args().Get(0))
		if err != nil {
			return xerrors.Errorf("parsing provider multiaddr: %w", err)
		}
		addrInfo, err := peer.AddrInfoFromP2pAddr(providerMaddr)
		if err != nil {
			return xerrors.Errorf("parsing provider multiaddr: %w", err)
		}
		providerAddr, err := address.NewFromString(cctx.Args().Get(1))
		if err != nil {
			return xerrors.Errorf("parsing provider actor address: %w", err)
		}
		pieceCid, err := cid.Decode(cctx.Args().Get(2))
		if err != nil {
			return xerrors.Errorf("parsing piece CID: %w", err)
		}
		rawPieceSize, err := strconv.ParseUint(cctx.Args().Get(3), 10, 64)
		if err != nil {
			return xerrors.Errorf("parsing piece size: %w", err)
		}
		pieceSize := abi.PaddedPieceSize(rawPieceSize)

		price, err := big.FromString(cctx.String("price"))
		if err != nil {
			return xerrors.Errorf("parsing price: %w", err)
		}
		providerCollateral, err := big.FromString(cctx.String("provider-collateral"))
		if err != nil {
			return xerrors.Errorf("parsing provider-collateral: %w", err)
		}
		clientCollateral, err := big.FromString(cctx.String("client-collateral"))
		if err != nil {
			return xerrors.Errorf("parsing client-collateral: %w", err)
		}

		repoPath, err := homedirExpand(cctx.String("repo"))
		if err != nil {
			return err
		}

		client, host, clientAddr, closeClient, err := buildClient(repoPath)
		if err != nil {
			return err
		}
		defer closeClient()

		ctx := cctx.Context
		host.Peerstore().AddAddrs(addrInfo.ID, addrInfo.Addrs, peerstore.PermanentAddrTTL)
		if err := host.Connect(ctx, *addrInfo); err != nil {
			return xerrors.Errorf("connecting to provider %s: %w", addrInfo.ID, err)
		}

		startEpoch := abi.ChainEpoch(cctx.Int64("start-epoch"))
		proposal := storagemarket.DealProposal{
			PieceCID:             pieceCid,
			PieceSize:            pieceSize,
			Client:               clientAddr,
			Provider:             providerAddr,
			StartEpoch:           startEpoch,
			EndEpoch:             startEpoch + abi.ChainEpoch(cctx.Int64("duration")),
			StoragePricePerEpoch: price,
			ProviderCollateral:   providerCollateral,
			ClientCollateral:     clientCollateral,
		}

		ref := &storagemarket.DealRef{TransferType: storagemarket.TTManual, Root: pieceCid, PieceCid: &pieceCid}

		if err := client.Start(ctx); err != nil {
			return xerrors.Errorf("starting client: %w", err)
		}
		defer client.Stop()

		client.SubscribeToEvents(func(event storagemarket.ClientEvent, deal storagemarket.ClientDeal) {
			log.Infof("deal %s: %s -> %s", deal.ProposalCID, storagemarket.ClientEvents[event], storagemarket.DealStates[deal.State])
		})

		deal, err := client.ProposeDeal(ctx, clientAddr, addrInfo.ID, proposal, ref, cctx.Bool("fast-retrieval"))
		if err != nil {
			return xerrors.Errorf("proposing deal: %w", err)
		}

		log.Infof("deal proposed: %s", deal.ProposalCID)
		return nil
	},
}
