package storageimpl

import (
	"context"
	"time"

	"github.com/hannahhoward/go-pubsub"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/clientstates"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
)

// DefaultPollingInterval is how often CheckForDealAcceptance polls the
// provider's DealStatus protocol when a client does not override it.
const DefaultPollingInterval = time.Minute

// Client is the production implementation of a storage client's deal
// orchestration: it proposes deals to providers and drives them through
// clientstates' FSM to a terminal state.
type Client struct {
	net      network.StorageMarketNetwork
	node     storagemarket.StorageClientNode
	watcher  *chainevents.SectorCommittedWatcher
	transfer PieceTransfer
	polling  time.Duration

	stateMachines fsm.Group
	subscribers   *pubsub.PubSub
}

type internalClientEvent struct {
	evt  storagemarket.ClientEvent
	deal storagemarket.ClientDeal
}

func clientDispatcher(evt pubsub.Event, subscriberFn pubsub.SubscriberFn) error {
	ie, ok := evt.(internalClientEvent)
	if !ok {
		return xerrors.New("wrong type of event")
	}
	cb, ok := subscriberFn.(storagemarket.ClientSubscriber)
	if !ok {
		return xerrors.New("wrong type of event")
	}
	cb(ie.evt, ie.deal)
	return nil
}

// NewClient builds a Client bound to net and backed by ds for deal
// persistence. transfer may be nil; deals typed TTGraphsync then fail with
// a clear error instead of the client blocking forever.
func NewClient(net network.StorageMarketNetwork, ds datastore.Batching, watcher *chainevents.SectorCommittedWatcher, node storagemarket.StorageClientNode, transfer PieceTransfer) (*Client, error) {
	c := &Client{
		net:         net,
		node:        node,
		watcher:     watcher,
		transfer:    transfer,
		polling:     DefaultPollingInterval,
		subscribers: pubsub.New(clientDispatcher),
	}

	stateMachines, err := fsm.New(ds, fsm.Parameters{
		Environment:     &clientDealEnvironment{c},
		StateType:       storagemarket.ClientDeal{},
		StateKeyField:   "State",
		Events:          clientstates.ClientEvents,
		StateEntryFuncs: clientstates.ClientStateEntryFuncs,
		FinalityStates:  clientstates.ClientFinalityStates,
		Notifier:        c.notifySubscribers,
	})
	if err != nil {
		return nil, xerrors.Errorf("building client deal state machines: %w", err)
	}
	c.stateMachines = stateMachines

	return c, nil
}

func (c *Client) notifySubscribers(eventName fsm.EventName, state fsm.StateType) {
	evt := eventName.(storagemarket.ClientEvent)
	deal := state.(storagemarket.ClientDeal)
	_ = c.subscribers.Publish(internalClientEvent{evt, deal})
}

// Start runs the chain-event watcher the client's deals wait on.
func (c *Client) Start(ctx context.Context) error {
	return c.watcher.Run(ctx)
}

// Stop stops the chain-event watcher. Deals that have not reached a
// terminal state remain on disk and resume the next time a Client is
// constructed over the same datastore (spec.md §5).
func (c *Client) Stop() {
	c.watcher.Stop()
}

// SetPollingInterval overrides DefaultPollingInterval for deal-status
// polling; must be called before any deal reaches StorageDealCheckForAcceptance.
func (c *Client) SetPollingInterval(d time.Duration) {
	c.polling = d
}

// ProposeDeal signs proposal with signer's key, opens a deal with miner
// over ref, and begins tracking it. It returns as soon as the deal record
// is durably created; use SubscribeToEvents or GetLocalDeal to follow its
// progress.
func (c *Client) ProposeDeal(ctx context.Context, signer address.Address, miner peer.ID, proposal storagemarket.DealProposal, ref *storagemarket.DealRef, fastRetrieval bool) (storagemarket.ClientDeal, error) {
	signedProposal, err := c.node.SignProposal(ctx, signer, proposal)
	if err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("signing proposal: %w", err)
	}

	proposalCid, err := storagemarket.GetProposalCid(signedProposal)
	if err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("computing proposal cid: %w", err)
	}

	workerAddr, err := c.node.GetDefaultWalletAddress(ctx)
	if err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("looking up default wallet: %w", err)
	}

	deal := storagemarket.ClientDeal{
		ClientDealProposal: *signedProposal,
		ProposalCID:        proposalCid,
		State:              storagemarket.StorageDealUnknown,
		Miner:              miner,
		MinerWorker:        workerAddr,
		DataRef:            ref,
		FastRetrieval:      fastRetrieval,
	}

	if err := c.stateMachines.Begin(proposalCid, &deal); err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("tracking new deal: %w", err)
	}

	if err := c.stateMachines.Send(proposalCid, storagemarket.ClientEventOpen); err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("starting deal: %w", err)
	}

	return deal, nil
}

// ListLocalDeals returns every deal this client has ever tracked.
func (c *Client) ListLocalDeals() ([]storagemarket.ClientDeal, error) {
	var deals []storagemarket.ClientDeal
	if err := c.stateMachines.List(&deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// GetLocalDeal returns a single deal record by ProposalCID.
func (c *Client) GetLocalDeal(proposalCid cid.Cid) (storagemarket.ClientDeal, error) {
	var out storagemarket.ClientDeal
	if err := c.stateMachines.Get(proposalCid).Get(&out); err != nil {
		return storagemarket.ClientDeal{}, xerrors.Errorf("%w: %s", storagemarket.ErrLocalDealNotFound, err)
	}
	return out, nil
}

// SubscribeToEvents registers a listener for every event this client's
// deals experience.
func (c *Client) SubscribeToEvents(subscriber storagemarket.ClientSubscriber) func() {
	return c.subscribers.Subscribe(subscriber)
}

var _ clientstates.ClientDealEnvironment = (*clientDealEnvironment)(nil)

type clientDealEnvironment struct {
	c *Client
}

func (e *clientDealEnvironment) Node() storagemarket.StorageClientNode {
	return e.c.node
}

func (e *clientDealEnvironment) NewDealStream(ctx context.Context, miner peer.ID) (network.StorageDealStream, error) {
	return e.c.net.NewDealStream(ctx, miner)
}

func (e *clientDealEnvironment) NewDealStatusStream(ctx context.Context, miner peer.ID) (network.DealStatusStream, error) {
	return e.c.net.NewDealStatusStream(ctx, miner)
}

func (e *clientDealEnvironment) Watcher() *chainevents.SectorCommittedWatcher {
	return e.c.watcher
}

func (e *clientDealEnvironment) PollingInterval() time.Duration {
	return e.c.polling
}

func (e *clientDealEnvironment) TagPeer(id peer.ID, tag string) {
	e.c.net.TagPeer(id, tag)
}

func (e *clientDealEnvironment) UntagPeer(id peer.ID, tag string) {
	e.c.net.UntagPeer(id, tag)
}

func (e *clientDealEnvironment) PushData(ctx context.Context, deal storagemarket.ClientDeal) error {
	if e.c.transfer == nil {
		return xerrors.New("no graphsync transfer configured for this client")
	}
	return e.c.transfer.Push(ctx, deal.Miner, deal.DataRef)
}
