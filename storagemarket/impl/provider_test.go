package storageimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	cryptotypes "github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/storedask"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
	"github.com/filecoin-project/storagemarketcore/stores"
)

type fakeHeadChangeSource struct{}

func (fakeHeadChangeSource) ChainNotify(ctx context.Context) (<-chan []*chainevents.HeadChange, error) {
	return make(chan []*chainevents.HeadChange), nil
}

type fakeChainNode struct {
	worker address.Address
	wallet address.Address

	// waitForPublishDeals and onDealExpiredOrSlashed let individual tests
	// drive a deal past WaitForPublish/WaitForDealCompletion without
	// touching every other fakeChainNode user. Nil means the zero-value
	// behavior below.
	waitForPublishDeals    func(ctx context.Context, mcid cid.Cid, proposal storagemarket.DealProposal) (*storagemarket.PublishDealsWaitResult, error)
	onDealExpiredOrSlashed func(ctx context.Context, dealID abi.DealID, onExpired storagemarket.DealExpiredCallback, onSlashed storagemarket.DealSlashedCallback) error
}

func (n *fakeChainNode) GetChainHead(ctx context.Context) (storagemarket.TipSetToken, abi.ChainEpoch, error) {
	return storagemarket.TipSetToken{}, abi.ChainEpoch(0), nil
}
func (n *fakeChainNode) AddFunds(ctx context.Context, addr address.Address, amount abi.TokenAmount) (cid.Cid, error) {
	return cid.Undef, nil
}
func (n *fakeChainNode) ReserveFunds(ctx context.Context, wallet, addr address.Address, amt abi.TokenAmount) (cid.Cid, error) {
	return cid.Undef, nil
}
func (n *fakeChainNode) ReleaseFunds(ctx context.Context, addr address.Address, amt abi.TokenAmount) error {
	return nil
}
func (n *fakeChainNode) VerifySignature(ctx context.Context, signature cryptotypes.Signature, signer address.Address, plaintext []byte, tok storagemarket.TipSetToken) (bool, error) {
	return true, nil
}
func (n *fakeChainNode) WaitForMessage(ctx context.Context, mcid cid.Cid, onCompletion func(exitcode.ExitCode, []byte, cid.Cid, error) error) error {
	return nil
}
func (n *fakeChainNode) SignBytes(ctx context.Context, signer address.Address, b []byte) (*cryptotypes.Signature, error) {
	return &cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")}, nil
}
func (n *fakeChainNode) DealProviderCollateralBounds(ctx context.Context, size abi.PaddedPieceSize, isVerified bool) (abi.TokenAmount, abi.TokenAmount, error) {
	return big.NewInt(0), big.NewInt(1_000_000_000_000), nil
}
func (n *fakeChainNode) OnDealSectorPreCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, proposal storagemarket.DealProposal, publishCid *cid.Cid, cb storagemarket.DealSectorPreCommittedCallback) error {
	return nil
}
func (n *fakeChainNode) OnDealSectorCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, sectorNumber abi.SectorNumber, proposal storagemarket.DealProposal, publishCid *cid.Cid, cb storagemarket.DealSectorCommittedCallback) error {
	return nil
}
func (n *fakeChainNode) OnDealExpiredOrSlashed(ctx context.Context, dealID abi.DealID, onExpired storagemarket.DealExpiredCallback, onSlashed storagemarket.DealSlashedCallback) error {
	if n.onDealExpiredOrSlashed != nil {
		return n.onDealExpiredOrSlashed(ctx, dealID, onExpired, onSlashed)
	}
	return nil
}
func (n *fakeChainNode) PublishDeals(ctx context.Context, deal storagemarket.MinerDeal) (cid.Cid, error) {
	return cid.Undef, nil
}
func (n *fakeChainNode) WaitForPublishDeals(ctx context.Context, mcid cid.Cid, proposal storagemarket.DealProposal) (*storagemarket.PublishDealsWaitResult, error) {
	if n.waitForPublishDeals != nil {
		return n.waitForPublishDeals(ctx, mcid, proposal)
	}
	return nil, nil
}
func (n *fakeChainNode) OnDealComplete(ctx context.Context, deal storagemarket.MinerDeal, pieceSize abi.UnpaddedPieceSize, pieceReader io.Reader) error {
	return nil
}
func (n *fakeChainNode) GetMinerWorkerAddress(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (address.Address, error) {
	return n.worker, nil
}
func (n *fakeChainNode) GetProofType(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (abi.RegisteredSealProof, error) {
	return abi.RegisteredSealProof(0), nil
}
func (n *fakeChainNode) GetBalance(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (storagemarket.Balance, error) {
	return storagemarket.Balance{Available: big.NewInt(1_000_000_000_000), Locked: big.NewInt(0)}, nil
}
func (n *fakeChainNode) ValidatePublishedDeal(ctx context.Context, deal storagemarket.ClientDeal) (abi.DealID, error) {
	return abi.DealID(0), nil
}
func (n *fakeChainNode) SignProposal(ctx context.Context, signer address.Address, proposal storagemarket.DealProposal) (*storagemarket.ClientDealProposal, error) {
	return &storagemarket.ClientDealProposal{Proposal: proposal, ClientSignature: cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")}}, nil
}
func (n *fakeChainNode) GetDefaultWalletAddress(ctx context.Context) (address.Address, error) {
	return n.wallet, nil
}

type fakeNetwork struct {
	id peer.ID

	dealStream       network.StorageDealStream
	dealStatusStream network.DealStatusStream
}

func (f *fakeNetwork) NewAskStream(ctx context.Context, p peer.ID) (network.StorageAskStream, error) {
	return nil, nil
}
func (f *fakeNetwork) NewDealStream(ctx context.Context, p peer.ID) (network.StorageDealStream, error) {
	if f.dealStream == nil {
		return nil, xerrors.New("no deal stream configured")
	}
	return f.dealStream, nil
}
func (f *fakeNetwork) NewDealStatusStream(ctx context.Context, p peer.ID) (network.DealStatusStream, error) {
	if f.dealStatusStream == nil {
		return nil, xerrors.New("no deal status stream configured")
	}
	return f.dealStatusStream, nil
}
func (f *fakeNetwork) SetDelegate(network.StorageReceiver) error { return nil }
func (f *fakeNetwork) StopHandlingRequests() error               { return nil }
func (f *fakeNetwork) ID() peer.ID                               { return f.id }
func (f *fakeNetwork) AddAddrs(peer.ID, []ma.Multiaddr)          {}
func (f *fakeNetwork) TagPeer(peer.ID, string)                   {}
func (f *fakeNetwork) UntagPeer(peer.ID, string)                 {}

type fakeDealStream struct {
	proposal     network.Proposal
	readResponse network.SignedResponse
	responses    []network.SignedResponse
	remote       peer.ID
	closed       bool
}

func (s *fakeDealStream) ReadDealProposal() (network.Proposal, error) { return s.proposal, nil }
func (s *fakeDealStream) WriteDealProposal(network.Proposal) error     { return nil }
func (s *fakeDealStream) ReadDealResponse() (network.SignedResponse, []byte, error) {
	return s.readResponse, []byte("resp"), nil
}
func (s *fakeDealStream) WriteDealResponse(r network.SignedResponse, _ network.ResigningFunc) error {
	s.responses = append(s.responses, r)
	return nil
}
func (s *fakeDealStream) RemotePeer() peer.ID { return s.remote }
func (s *fakeDealStream) Close() error        { s.closed = true; return nil }

type fakeDealStatusStream struct {
	response network.DealStatusResponse
	requests []network.DealStatusRequest
}

func (s *fakeDealStatusStream) ReadDealStatusRequest() (network.DealStatusRequest, error) {
	return network.DealStatusRequest{}, nil
}
func (s *fakeDealStatusStream) WriteDealStatusRequest(r network.DealStatusRequest) error {
	s.requests = append(s.requests, r)
	return nil
}
func (s *fakeDealStatusStream) ReadDealStatusResponse() (network.DealStatusResponse, []byte, error) {
	return s.response, []byte("status"), nil
}
func (s *fakeDealStatusStream) WriteDealStatusResponse(network.DealStatusResponse, network.ResigningFunc) error {
	return nil
}
func (s *fakeDealStatusStream) Close() error { return nil }

func mustPieceCid(t *testing.T) cid.Cid {
	c, err := mustPieceCidForDataErr([]byte("mustPieceCid"))
	require.NoError(t, err)
	return c
}

// fakePieceIO computes a piece CID directly from the bytes it is handed,
// so a test can predict VerifyData's result by running the same
// computation over the data it plans to import.
type fakePieceIO struct{}

func (fakePieceIO) GeneratePieceCommitment(proofType abi.RegisteredSealProof, data io.Reader, pieceSize abi.UnpaddedPieceSize) (cid.Cid, abi.UnpaddedPieceSize, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return cid.Undef, 0, err
	}
	c, err := mustPieceCidForDataErr(b)
	return c, pieceSize, err
}

func mustPieceCidForDataErr(b []byte) (cid.Cid, error) {
	// 0x12 is the sha2-256 multihash code.
	return cid.NewPrefixV1(cid.Raw, 0x12).Sum(b)
}

func mustPieceCidForData(t *testing.T, b []byte) cid.Cid {
	c, err := mustPieceCidForDataErr(b)
	require.NoError(t, err)
	return c
}

// newTestLocalStore opens a single real local storage path so
// stagePieceData's AcquireSector calls have somewhere to write.
func newTestLocalStore(t *testing.T) *stores.Local {
	dir := t.TempDir()
	meta := stores.LocalStorageMeta{ID: "test-storage", Weight: 10, CanSeal: true, CanStore: true}
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, stores.MetaFile), b, 0644))

	store := stores.NewLocal(stores.NewIndex(), nil)
	require.NoError(t, store.OpenPath(context.Background(), dir))
	return store
}

func newTestProvider(t *testing.T) (*Provider, address.Address) {
	return newTestProviderWith(t, nil, nil)
}

// newTestProviderWith builds a Provider over a fakeChainNode that callers
// can configure (e.g. to arm waitForPublishDeals/onDealExpiredOrSlashed)
// before the FSM starts driving deals, plus an optional PieceIO for tests
// that exercise VerifyData.
func newTestProviderWith(t *testing.T, configureNode func(*fakeChainNode), pieceIO storagemarket.PieceIO) (*Provider, address.Address) {
	client, err := address.NewIDAddress(1001)
	require.NoError(t, err)

	providerAddr, err := address.NewIDAddress(1000)
	require.NoError(t, err)
	worker, err := address.NewIDAddress(1002)
	require.NoError(t, err)

	node := &fakeChainNode{worker: worker, wallet: client}
	if configureNode != nil {
		configureNode(node)
	}

	ds := dssync.MutexWrap(datastore.NewMapDatastore())

	ask, err := storedask.NewStoredAsk(ds, datastore.NewKey("/ask"), node, providerAddr)
	require.NoError(t, err)
	require.NoError(t, ask.SetAsk(big.NewInt(1), big.NewInt(1), abi.ChainEpoch(1000)))

	store := newTestLocalStore(t)

	watcher := chainevents.NewSectorCommittedWatcher(fakeHeadChangeSource{})
	require.NoError(t, watcher.Run(context.Background()))
	t.Cleanup(watcher.Stop)

	net := &fakeNetwork{id: peer.ID("provider-peer")}

	p, err := NewProvider(net, ds, store, pieceIO, watcher, node, providerAddr, ask, nil)
	require.NoError(t, err)

	return p, client
}

func TestProviderHandleDealStreamAcceptsManualDeal(t *testing.T) {
	p, client := newTestProvider(t)

	proposal := storagemarket.DealProposal{
		PieceCID:             mustPieceCid(t),
		PieceSize:            1024,
		Client:               client,
		Provider:             p.address,
		StartEpoch:           abi.ChainEpoch(100),
		EndEpoch:             abi.ChainEpoch(200),
		StoragePricePerEpoch: big.NewInt(1),
		ProviderCollateral:   big.NewInt(0),
		ClientCollateral:     big.NewInt(0),
	}

	s := &fakeDealStream{
		remote: peer.ID("client-peer"),
		proposal: network.Proposal{
			DealProposal: &storagemarket.ClientDealProposal{
				Proposal:        proposal,
				ClientSignature: cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")},
			},
			Piece: &storagemarket.DealRef{TransferType: storagemarket.TTManual, Root: mustPieceCid(t)},
		},
	}

	p.HandleDealStream(s)

	proposalCid, err := storagemarket.GetProposalCid(s.proposal.DealProposal)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealWaitingForData
	}, 2*time.Second, 10*time.Millisecond)

	deal, err := p.GetLocalDeal(proposalCid)
	require.NoError(t, err)
	require.Equal(t, client, deal.Proposal.Client)
	require.Equal(t, peer.ID("client-peer"), deal.Client)
	require.NotEmpty(t, s.responses)
	require.Equal(t, storagemarket.StorageDealProposalAccepted, s.responses[0].Response.State)
}

// pushableHeadChangeSource lets a test feed chain messages to a
// chainevents.SectorCommittedWatcher on demand, mirroring
// chainevents' own fakeHeadChangeSource test helper.
type pushableHeadChangeSource struct {
	ch chan []*chainevents.HeadChange
}

func newPushableHeadChangeSource() *pushableHeadChangeSource {
	return &pushableHeadChangeSource{ch: make(chan []*chainevents.HeadChange, 8)}
}

func (s *pushableHeadChangeSource) ChainNotify(ctx context.Context) (<-chan []*chainevents.HeadChange, error) {
	return s.ch, nil
}

func (s *pushableHeadChangeSource) push(hc ...*chainevents.HeadChange) {
	s.ch <- hc
}

func dumpCbor(t *testing.T, v interface{}) []byte {
	b, err := cborutil.Dump(v)
	require.NoError(t, err)
	return b
}

func manualDealStream(proposal storagemarket.DealProposal) *fakeDealStream {
	return &fakeDealStream{
		remote: peer.ID("client-peer"),
		proposal: network.Proposal{
			DealProposal: &storagemarket.ClientDealProposal{
				Proposal:        proposal,
				ClientSignature: cryptotypes.Signature{Type: cryptotypes.SigTypeBLS, Data: []byte("sig")},
			},
			Piece: &storagemarket.DealRef{TransferType: storagemarket.TTManual, Root: proposal.PieceCID},
		},
	}
}

// TestProviderManualDealReachesCompleted drives scenario 1: a manual-transfer
// deal moves waiting_for_data -> verify_data -> ... -> active -> completed,
// with ImportDataForDeal supplying the bytes and a chain-event watcher plus
// expiry callback supplying activation and completion.
func TestProviderManualDealReachesCompleted(t *testing.T) {
	providerAddr, err := address.NewIDAddress(1000)
	require.NoError(t, err)
	worker, err := address.NewIDAddress(1002)
	require.NoError(t, err)
	client, err := address.NewIDAddress(1001)
	require.NoError(t, err)

	const dealID = abi.DealID(7)
	expiredCh := make(chan struct{})

	node := &fakeChainNode{
		worker: worker,
		wallet: client,
		waitForPublishDeals: func(ctx context.Context, mcid cid.Cid, proposal storagemarket.DealProposal) (*storagemarket.PublishDealsWaitResult, error) {
			return &storagemarket.PublishDealsWaitResult{DealID: dealID, FinalCid: mcid}, nil
		},
		onDealExpiredOrSlashed: func(ctx context.Context, gotDealID abi.DealID, onExpired storagemarket.DealExpiredCallback, onSlashed storagemarket.DealSlashedCallback) error {
			go func() {
				onExpired(nil)
				close(expiredCh)
			}()
			return nil
		},
	}

	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	ask, err := storedask.NewStoredAsk(ds, datastore.NewKey("/ask"), node, providerAddr)
	require.NoError(t, err)
	require.NoError(t, ask.SetAsk(big.NewInt(1), big.NewInt(1), abi.ChainEpoch(1000)))

	store := newTestLocalStore(t)

	headSrc := newPushableHeadChangeSource()
	watcher := chainevents.NewSectorCommittedWatcher(headSrc)
	require.NoError(t, watcher.Run(context.Background()))
	t.Cleanup(watcher.Stop)

	net := &fakeNetwork{id: peer.ID("provider-peer")}

	p, err := NewProvider(net, ds, store, fakePieceIO{}, watcher, node, providerAddr, ask, nil)
	require.NoError(t, err)

	data := []byte("scenario one piece bytes")
	pieceCid := mustPieceCidForData(t, data)

	proposal := storagemarket.DealProposal{
		PieceCID:             pieceCid,
		PieceSize:            1024,
		Client:               client,
		Provider:             providerAddr,
		StartEpoch:           abi.ChainEpoch(100),
		EndEpoch:             abi.ChainEpoch(200),
		StoragePricePerEpoch: big.NewInt(1),
		ProviderCollateral:   big.NewInt(0),
		ClientCollateral:     big.NewInt(0),
	}

	s := manualDealStream(proposal)
	p.HandleDealStream(s)

	proposalCid, err := storagemarket.GetProposalCid(s.proposal.DealProposal)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealWaitingForData
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.ImportDataForDeal(context.Background(), proposalCid, bytes.NewReader(data)))

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealSealing
	}, 2*time.Second, 10*time.Millisecond)

	deal, err := p.GetLocalDeal(proposalCid)
	require.NoError(t, err)
	require.Equal(t, dealID, deal.DealID)

	pre := chainevents.SectorPreCommitInfo{SectorNumber: abi.SectorNumber(99), DealIDs: []abi.DealID{deal.DealID}}
	headSrc.push(&chainevents.HeadChange{Type: chainevents.HCApply, Val: &chainevents.TipSet{
		Height: 1,
		Messages: []*chainevents.Message{
			{To: providerAddr, Method: chainevents.MethodPreCommitSector, Params: dumpCbor(t, &pre)},
		},
	}})

	prove := chainevents.ProveCommitSectorParams{SectorNumber: abi.SectorNumber(99)}
	headSrc.push(&chainevents.HeadChange{Type: chainevents.HCApply, Val: &chainevents.TipSet{
		Height: 2,
		Messages: []*chainevents.Message{
			{To: providerAddr, Method: chainevents.MethodProveCommitSector, Params: dumpCbor(t, &prove)},
		},
	}})

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealActive
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-expiredCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expired callback never fired")
	}

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

// TestProviderPieceMismatchFails drives scenario 2: a manual-transfer deal
// whose imported bytes don't hash to the negotiated PieceCID fails
// verification and lands in StorageDealError.
func TestProviderPieceMismatchFails(t *testing.T) {
	p, client := newTestProviderWith(t, nil, fakePieceIO{})

	proposal := storagemarket.DealProposal{
		PieceCID:             mustPieceCid(t),
		PieceSize:            1024,
		Client:               client,
		Provider:             p.address,
		StartEpoch:           abi.ChainEpoch(100),
		EndEpoch:             abi.ChainEpoch(200),
		StoragePricePerEpoch: big.NewInt(1),
		ProviderCollateral:   big.NewInt(0),
		ClientCollateral:     big.NewInt(0),
	}

	s := manualDealStream(proposal)
	p.HandleDealStream(s)

	proposalCid, err := storagemarket.GetProposalCid(s.proposal.DealProposal)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealWaitingForData
	}, 2*time.Second, 10*time.Millisecond)

	mismatched := []byte("bytes that do not hash to the proposal's piece CID")
	require.NoError(t, p.ImportDataForDeal(context.Background(), proposalCid, bytes.NewReader(mismatched)))

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealError
	}, 2*time.Second, 10*time.Millisecond)

	deal, err := p.GetLocalDeal(proposalCid)
	require.NoError(t, err)
	require.Contains(t, deal.Message, "PieceCidDoesNotMatch")

	require.NotEmpty(t, s.responses)
	last := s.responses[len(s.responses)-1]
	require.Equal(t, storagemarket.StorageDealError, last.Response.State)
}

// TestProviderWrongMinerRejected drives scenario 6: a proposal addressed to
// a different provider is rejected with the WRONG_MINER reason and a
// Response is written back over the deal stream.
func TestProviderWrongMinerRejected(t *testing.T) {
	p, client := newTestProvider(t)

	otherProvider, err := address.NewIDAddress(9999)
	require.NoError(t, err)

	proposal := storagemarket.DealProposal{
		PieceCID:             mustPieceCid(t),
		PieceSize:            1024,
		Client:               client,
		Provider:             otherProvider,
		StartEpoch:           abi.ChainEpoch(100),
		EndEpoch:             abi.ChainEpoch(200),
		StoragePricePerEpoch: big.NewInt(1),
		ProviderCollateral:   big.NewInt(0),
		ClientCollateral:     big.NewInt(0),
	}

	s := manualDealStream(proposal)
	p.HandleDealStream(s)

	proposalCid, err := storagemarket.GetProposalCid(s.proposal.DealProposal)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		deal, err := p.GetLocalDeal(proposalCid)
		return err == nil && deal.State == storagemarket.StorageDealRejected
	}, 2*time.Second, 10*time.Millisecond)

	deal, err := p.GetLocalDeal(proposalCid)
	require.NoError(t, err)
	require.Contains(t, deal.Message, "WRONG_MINER")

	require.NotEmpty(t, s.responses)
	last := s.responses[len(s.responses)-1]
	require.Equal(t, storagemarket.StorageDealRejected, last.Response.State)
	require.Equal(t, proposalCid, last.Response.Proposal)
}

func TestProviderListAndSubscribe(t *testing.T) {
	p, _ := newTestProvider(t)

	var seen []storagemarket.ProviderEvent
	unsub := p.SubscribeToEvents(func(event storagemarket.ProviderEvent, deal storagemarket.MinerDeal) {
		seen = append(seen, event)
	})
	defer unsub()

	deals, err := p.ListLocalDeals()
	require.NoError(t, err)
	require.Empty(t, deals)
}
