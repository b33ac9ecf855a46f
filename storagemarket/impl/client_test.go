package storageimpl

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-address"
	cryptotypes "github.com/filecoin-project/go-state-types/crypto"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
)

func newTestClient(t *testing.T) (*Client, *fakeNetwork, address.Address) {
	signer, err := address.NewIDAddress(2001)
	require.NoError(t, err)
	worker, err := address.NewIDAddress(2002)
	require.NoError(t, err)

	node := &fakeChainNode{worker: worker, wallet: signer}
	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	watcher := chainevents.NewSectorCommittedWatcher(fakeHeadChangeSource{})
	require.NoError(t, watcher.Run(context.Background()))
	t.Cleanup(watcher.Stop)

	net := &fakeNetwork{id: peer.ID("client-peer")}

	c, err := NewClient(net, ds, watcher, node, nil)
	require.NoError(t, err)
	c.SetPollingInterval(5 * time.Millisecond)

	return c, net, signer
}

func TestClientProposeDealReachesSealing(t *testing.T) {
	c, net, signer := newTestClient(t)

	providerAddr, err := address.NewIDAddress(3000)
	require.NoError(t, err)

	proposal := storagemarket.DealProposal{
		PieceCID:             mustPieceCid(t),
		PieceSize:            1024,
		Client:               signer,
		Provider:             providerAddr,
		StartEpoch:           abi.ChainEpoch(100),
		EndEpoch:             abi.ChainEpoch(200),
		StoragePricePerEpoch: big.NewInt(1),
		ProviderCollateral:   big.NewInt(0),
		ClientCollateral:     big.NewInt(0),
	}

	// fakeChainNode.SignProposal always returns this fixed signature, so
	// the proposal cid can be precomputed and the deal stream armed with
	// its acceptance before ProposeDeal's asynchronous state-entry chain
	// has a chance to read it.
	signedProposal := storagemarket.ClientDealProposal{
		Proposal:        proposal,
		ClientSignature: cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")},
	}
	proposalCid, err := storagemarket.GetProposalCid(&signedProposal)
	require.NoError(t, err)

	dealStream := &fakeDealStream{
		remote: peer.ID("provider-peer"),
		readResponse: network.SignedResponse{
			Response: network.Response{
				State:    storagemarket.StorageDealProposalAccepted,
				Proposal: proposalCid,
			},
			Signature: &cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")},
		},
	}
	net.dealStream = dealStream
	net.dealStatusStream = &fakeDealStatusStream{
		response: network.DealStatusResponse{
			DealState: network.DealState{State: storagemarket.StorageDealSealing},
			Signature: cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")},
		},
	}

	ref := &storagemarket.DealRef{TransferType: storagemarket.TTManual, Root: mustPieceCid(t)}

	deal, err := c.ProposeDeal(context.Background(), signer, peer.ID("provider-peer"), proposal, ref, false)
	require.NoError(t, err)
	require.Equal(t, proposalCid, deal.ProposalCID)

	require.Eventually(t, func() bool {
		got, err := c.GetLocalDeal(proposalCid)
		return err == nil && got.State == storagemarket.StorageDealSealing
	}, 2*time.Second, 10*time.Millisecond)

	got, err := c.GetLocalDeal(proposalCid)
	require.NoError(t, err)
	require.Equal(t, abi.DealID(0), got.DealID)
	require.NotEmpty(t, net.dealStatusStream.(*fakeDealStatusStream).requests)
}

func TestClientListAndSubscribe(t *testing.T) {
	c, _, _ := newTestClient(t)

	var seen []storagemarket.ClientEvent
	unsub := c.SubscribeToEvents(func(event storagemarket.ClientEvent, deal storagemarket.ClientDeal) {
		seen = append(seen, event)
	})
	defer unsub()

	deals, err := c.ListLocalDeals()
	require.NoError(t, err)
	require.Empty(t, deals)
}
