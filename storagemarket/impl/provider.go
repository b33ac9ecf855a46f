// Package storageimpl wires the provider- and client-side deal FSMs
// (providerstates/clientstates) to a concrete network, node, and storage
// backend, the top-level orchestrators neither sub-package owns on its own.
// Grounded on retrievalmarket/impl/client.go's Client (the only production
// orchestrator present anywhere in the retrieved corpus): a fsm.Group over
// go-statestore, a go-pubsub event bus, and a thin StorageReceiver facade.
// No production provider.go/client.go exist in the corpus for storagemarket
// itself; this file and client.go are reconstructed in that file's idiom.
package storageimpl

import (
	"context"
	"io"
	"sync"

	"github.com/hannahhoward/go-pubsub"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/providerstates"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/providerutils"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/storedask"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
	"github.com/filecoin-project/storagemarketcore/stores"
)

var log = logging.Logger("storageimpl")

// PieceTransfer is this core's seam for the graphsync-typed transfer path.
// spec.md's out-of-scope list excludes both the raw block datastore and the
// data-transfer/graphsync subsystem itself, so no implementation ships
// here; a deployment that wants graphsync-typed deals wires one in via
// NewProvider/NewClient. Manual-typed deals never call this.
type PieceTransfer interface {
	// Fetch retrieves ref's bytes from the given peer, used by a provider
	// pulling data from a client.
	Fetch(ctx context.Context, from peer.ID, ref *storagemarket.DealRef) (io.Reader, error)
	// Push delivers ref's bytes to the given peer, used by a client
	// pushing data to a provider.
	Push(ctx context.Context, to peer.ID, ref *storagemarket.DealRef) error
}

// Provider is the production implementation of a storage provider's deal
// orchestration: it answers Ask/Deal/DealStatus streams and drives every
// accepted proposal through providerstates' FSM to a terminal state.
type Provider struct {
	net      network.StorageMarketNetwork
	node     storagemarket.StorageProviderNode
	store    stores.Store
	pieceIO  storagemarket.PieceIO
	watcher  *chainevents.SectorCommittedWatcher
	ask      *storedask.StoredAsk
	transfer PieceTransfer
	address  address.Address

	stateMachines fsm.Group
	subscribers   *pubsub.PubSub

	connsLk sync.Mutex
	conns   map[cid.Cid]network.StorageDealStream
}

var _ network.StorageReceiver = (*Provider)(nil)

type internalProviderEvent struct {
	evt  storagemarket.ProviderEvent
	deal storagemarket.MinerDeal
}

func providerDispatcher(evt pubsub.Event, subscriberFn pubsub.SubscriberFn) error {
	ie, ok := evt.(internalProviderEvent)
	if !ok {
		return xerrors.New("wrong type of event")
	}
	cb, ok := subscriberFn.(storagemarket.ProviderSubscriber)
	if !ok {
		return xerrors.New("wrong type of event")
	}
	cb(ie.evt, ie.deal)
	return nil
}

// NewProvider builds a Provider bound to net and backed by ds for deal
// persistence. transfer may be nil; deals typed TTGraphsync then fail with
// a clear error instead of the provider blocking forever.
func NewProvider(net network.StorageMarketNetwork, ds datastore.Batching, store stores.Store, pieceIO storagemarket.PieceIO, watcher *chainevents.SectorCommittedWatcher, node storagemarket.StorageProviderNode, minerAddress address.Address, ask *storedask.StoredAsk, transfer PieceTransfer) (*Provider, error) {
	p := &Provider{
		net:      net,
		node:     node,
		store:    store,
		pieceIO:  pieceIO,
		watcher:  watcher,
		ask:      ask,
		transfer: transfer,
		address:  minerAddress,

		subscribers: pubsub.New(providerDispatcher),
		conns:       map[cid.Cid]network.StorageDealStream{},
	}

	stateMachines, err := fsm.New(ds, fsm.Parameters{
		Environment:     &providerDealEnvironment{p},
		StateType:       storagemarket.MinerDeal{},
		StateKeyField:   "State",
		Events:          providerstates.ProviderEvents,
		StateEntryFuncs: providerstates.ProviderStateEntryFuncs,
		FinalityStates:  providerstates.ProviderFinalityStates,
		Notifier:        p.notifySubscribers,
	})
	if err != nil {
		return nil, xerrors.Errorf("building provider deal state machines: %w", err)
	}
	p.stateMachines = stateMachines

	return p, nil
}

func (p *Provider) notifySubscribers(eventName fsm.EventName, state fsm.StateType) {
	evt := eventName.(storagemarket.ProviderEvent)
	deal := state.(storagemarket.MinerDeal)
	_ = p.subscribers.Publish(internalProviderEvent{evt, deal})
}

// Start begins handling incoming Ask/Deal/DealStatus streams.
func (p *Provider) Start(ctx context.Context) error {
	if err := p.net.SetDelegate(p); err != nil {
		return xerrors.Errorf("registering storage market stream handlers: %w", err)
	}
	return p.watcher.Run(ctx)
}

// Stop stops accepting new streams and the chain-event watcher. Deals that
// have not reached a terminal state remain on disk and resume the next
// time a Provider is constructed over the same datastore (spec.md §5).
func (p *Provider) Stop() error {
	p.watcher.Stop()
	return p.net.StopHandlingRequests()
}

// AddAsk sets the provider's current advertised price and duration.
func (p *Provider) AddAsk(price, verifiedPrice abi.TokenAmount, duration abi.ChainEpoch, options ...storagemarket.StorageAskOption) error {
	return p.ask.SetAsk(price, verifiedPrice, duration, options...)
}

// GetAsk returns the provider's current signed ask, or nil if none is set.
func (p *Provider) GetAsk() *storagemarket.SignedStorageAsk {
	return p.ask.GetAsk(p.address)
}

// ListLocalDeals returns every deal this provider has ever tracked.
func (p *Provider) ListLocalDeals() ([]storagemarket.MinerDeal, error) {
	var deals []storagemarket.MinerDeal
	if err := p.stateMachines.List(&deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// GetLocalDeal returns a single deal record by ProposalCID.
func (p *Provider) GetLocalDeal(proposalCid cid.Cid) (storagemarket.MinerDeal, error) {
	var out storagemarket.MinerDeal
	if err := p.stateMachines.Get(proposalCid).Get(&out); err != nil {
		return storagemarket.MinerDeal{}, xerrors.Errorf("%w: %s", storagemarket.ErrLocalDealNotFound, err)
	}
	return out, nil
}

// SubscribeToEvents registers a listener for every event this provider's
// deals experience.
func (p *Provider) SubscribeToEvents(subscriber storagemarket.ProviderSubscriber) func() {
	return p.subscribers.Subscribe(subscriber)
}

// ImportDataForDeal delivers bytes for a manual-transfer deal that is
// currently parked in StorageDealWaitingForData.
func (p *Provider) ImportDataForDeal(ctx context.Context, proposalCid cid.Cid, data io.Reader) error {
	var deal storagemarket.MinerDeal
	if err := p.stateMachines.Get(proposalCid).Get(&deal); err != nil {
		return xerrors.Errorf("%w: %s", storagemarket.ErrLocalDealNotFound, err)
	}
	if deal.Ref == nil || deal.Ref.TransferType != storagemarket.TTManual {
		return storagemarket.ErrPieceDataNotSetForManualTransfer
	}

	path, err := providerstates.ImportDataForDeal(ctx, &providerDealEnvironment{p}, deal, data)
	if err != nil {
		return p.stateMachines.Send(proposalCid, storagemarket.ProviderEventDataTransferFailed, err)
	}
	return p.stateMachines.Send(proposalCid, storagemarket.ProviderEventDataTransferCompleted, path)
}

// HandleAskStream answers a single AskRequest with the current signed ask.
func (p *Provider) HandleAskStream(s network.StorageAskStream) {
	defer s.Close()

	_, err := s.ReadAskRequest()
	if err != nil {
		log.Warnf("failed to read ask request: %s", err)
		return
	}

	ask := p.GetAsk()
	if err := s.WriteAskResponse(network.AskResponse{Ask: ask}, nil); err != nil {
		log.Warnf("failed to write ask response: %s", err)
	}
}

// HandleDealStream reads an inbound Proposal and begins tracking the deal.
// The stream is kept open (registered under the deal's ProposalCID) so the
// provider can continue writing responses to it as the FSM advances;
// providerDealEnvironment.Disconnect closes it when the deal is rejected
// or fails. A deal that proceeds normally leaves its stream registered.
func (p *Provider) HandleDealStream(s network.StorageDealStream) {
	proposal, err := s.ReadDealProposal()
	if err != nil {
		log.Warnf("failed to read deal proposal: %s", err)
		s.Close()
		return
	}

	proposalCid, err := storagemarket.GetProposalCid(proposal.DealProposal)
	if err != nil {
		log.Warnf("failed to compute proposal cid: %s", err)
		s.Close()
		return
	}

	p.connsLk.Lock()
	p.conns[proposalCid] = s
	p.connsLk.Unlock()

	deal := storagemarket.MinerDeal{
		ClientDealProposal: *proposal.DealProposal,
		ProposalCID:        proposalCid,
		Miner:              p.net.ID(),
		Client:             s.RemotePeer(),
		State:              storagemarket.StorageDealUnknown,
		Ref:                proposal.Piece,
		FastRetrieval:      proposal.FastRetrieval,
	}

	if err := p.stateMachines.Begin(proposalCid, &deal); err != nil {
		log.Warnf("failed to begin tracking deal %s: %s", proposalCid, err)
		p.closeConn(proposalCid)
		return
	}

	if err := p.stateMachines.Send(proposalCid, storagemarket.ProviderEventOpen); err != nil {
		log.Warnf("failed to post ProviderEventOpen for deal %s: %s", proposalCid, err)
	}
}

// HandleDealStatusStream answers a single signed DealStatusRequest with the
// current state of the deal it names.
func (p *Provider) HandleDealStatusStream(s network.DealStatusStream) {
	defer s.Close()

	req, err := s.ReadDealStatusRequest()
	if err != nil {
		log.Warnf("failed to read deal status request: %s", err)
		return
	}

	var deal storagemarket.MinerDeal
	if err := p.stateMachines.Get(req.Proposal).Get(&deal); err != nil {
		log.Warnf("deal status request for unknown deal %s: %s", req.Proposal, err)
		return
	}

	tok, _, err := p.node.GetChainHead(context.TODO())
	if err != nil {
		log.Warnf("failed to get chain head: %s", err)
		return
	}

	if err := providerutils.VerifySignature(context.TODO(), req.Signature, deal.Proposal.Client, req.Proposal.Bytes(), tok, p.node.VerifySignature); err != nil {
		log.Warnf("invalid deal status request signature for %s: %s", req.Proposal, err)
		return
	}

	state := network.DealState{
		State:       deal.State,
		Message:     deal.Message,
		Proposal:    deal.Proposal,
		ProposalCid: deal.ProposalCID,
		AddFundsCid: deal.AddFundsCid,
		PublishCid:  deal.PublishCid,
	}

	sig, err := providerutils.SignMinerData(context.TODO(), &state, deal.Proposal.Provider, tok, p.node.GetMinerWorkerAddress, p.node.SignBytes)
	if err != nil {
		log.Warnf("failed to sign deal status response: %s", err)
		return
	}

	if err := s.WriteDealStatusResponse(network.DealStatusResponse{DealState: state, Signature: *sig}, nil); err != nil {
		log.Warnf("failed to write deal status response: %s", err)
	}
}

func (p *Provider) closeConn(proposalCid cid.Cid) {
	p.connsLk.Lock()
	s, ok := p.conns[proposalCid]
	delete(p.conns, proposalCid)
	p.connsLk.Unlock()
	if ok {
		_ = s.Close()
	}
}

var _ providerstates.ProviderDealEnvironment = (*providerDealEnvironment)(nil)

type providerDealEnvironment struct {
	p *Provider
}

func (e *providerDealEnvironment) Address() address.Address {
	return e.p.address
}

func (e *providerDealEnvironment) Node() storagemarket.StorageProviderNode {
	return e.p.node
}

func (e *providerDealEnvironment) Ask() storagemarket.StorageAsk {
	ask := e.p.GetAsk()
	if ask == nil {
		return storagemarket.StorageAsk{}
	}
	return *ask.Ask
}

func (e *providerDealEnvironment) PieceIO() storagemarket.PieceIO {
	return e.p.pieceIO
}

func (e *providerDealEnvironment) Store() stores.Store {
	return e.p.store
}

func (e *providerDealEnvironment) Watcher() *chainevents.SectorCommittedWatcher {
	return e.p.watcher
}

func (e *providerDealEnvironment) TagPeer(id peer.ID, tag string) {
	e.p.net.TagPeer(id, tag)
}

func (e *providerDealEnvironment) UntagPeer(id peer.ID, tag string) {
	e.p.net.UntagPeer(id, tag)
}

func (e *providerDealEnvironment) SendSignedResponse(ctx context.Context, response *network.Response) error {
	e.p.connsLk.Lock()
	s, ok := e.p.conns[response.Proposal]
	e.p.connsLk.Unlock()
	if !ok {
		return xerrors.Errorf("no open deal stream for proposal %s", response.Proposal)
	}

	tok, _, err := e.p.node.GetChainHead(ctx)
	if err != nil {
		return xerrors.Errorf("getting chain head: %w", err)
	}

	sig, err := providerutils.SignMinerData(ctx, response, e.p.address, tok, e.p.node.GetMinerWorkerAddress, e.p.node.SignBytes)
	if err != nil {
		return xerrors.Errorf("signing response: %w", err)
	}

	return s.WriteDealResponse(network.SignedResponse{Response: *response, Signature: sig}, nil)
}

func (e *providerDealEnvironment) Disconnect(proposalCid cid.Cid) error {
	e.p.closeConn(proposalCid)
	return nil
}

func (e *providerDealEnvironment) PullData(ctx context.Context, deal storagemarket.MinerDeal) (io.Reader, error) {
	if e.p.transfer == nil {
		return nil, xerrors.New("no graphsync transfer configured for this provider")
	}
	return e.p.transfer.Fetch(ctx, deal.Client, deal.Ref)
}
