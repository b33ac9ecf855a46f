// Package devnode is a local, chain-less stand-in for the blockchain
// client facade (storagemarket.StorageProviderNode/StorageClientNode) that
// both command front-ends wire in place of a real lotus full node. It
// exists only so the CLI can drive a deal end to end without a live chain;
// it signs nothing cryptographically real and never publishes anything.
package devnode

import (
	"context"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

var log = logging.Logger("devnode")

// Node satisfies both storagemarket.StorageProviderNode and
// storagemarket.StorageClientNode. self is the address this process acts
// as (a miner actor for storage-provider, a client account for
// storage-client); worker is the key that signs on self's behalf.
type Node struct {
	self   address.Address
	worker address.Address

	lk       sync.Mutex
	balances map[address.Address]abi.TokenAmount
	nextDeal abi.DealID
}

// New builds a devnode acting as self, with worker signing on its behalf.
// For a client, worker is usually self.
func New(self, worker address.Address) *Node {
	return &Node{
		self:     self,
		worker:   worker,
		balances: map[address.Address]abi.TokenAmount{},
	}
}

func (n *Node) balance(addr address.Address) abi.TokenAmount {
	n.lk.Lock()
	defer n.lk.Unlock()
	b, ok := n.balances[addr]
	if !ok {
		return big.Zero()
	}
	return b
}

func (n *Node) GetChainHead(ctx context.Context) (storagemarket.TipSetToken, abi.ChainEpoch, error) {
	return storagemarket.TipSetToken{}, abi.ChainEpoch(0), nil
}

// ChainNotify satisfies chainevents.HeadChangeSource. There being no real
// chain behind this node, it never delivers a head change; sector
// commitment futures registered against it never resolve, which is the
// expected limit of a local, chain-less exercise tool.
func (n *Node) ChainNotify(ctx context.Context) (<-chan []*chainevents.HeadChange, error) {
	return make(chan []*chainevents.HeadChange), nil
}

func (n *Node) AddFunds(ctx context.Context, addr address.Address, amount abi.TokenAmount) (cid.Cid, error) {
	n.lk.Lock()
	cur, ok := n.balances[addr]
	if !ok {
		cur = big.Zero()
	}
	n.balances[addr] = big.Add(cur, amount)
	n.lk.Unlock()
	log.Infof("added %s to %s's market balance", amount, addr)
	return cid.Undef, nil
}

func (n *Node) ReserveFunds(ctx context.Context, wallet, addr address.Address, amt abi.TokenAmount) (cid.Cid, error) {
	if _, err := n.AddFunds(ctx, addr, amt); err != nil {
		return cid.Undef, err
	}
	return cid.Undef, nil
}

func (n *Node) ReleaseFunds(ctx context.Context, addr address.Address, amt abi.TokenAmount) error {
	n.lk.Lock()
	cur, ok := n.balances[addr]
	if !ok {
		cur = big.Zero()
	}
	n.balances[addr] = big.Subtract(cur, amt)
	n.lk.Unlock()
	return nil
}

func (n *Node) GetBalance(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (storagemarket.Balance, error) {
	return storagemarket.Balance{Available: n.balance(addr), Locked: big.Zero()}, nil
}

// SignBytes produces a deterministic placeholder signature; there is no
// real key material behind it.
func (n *Node) SignBytes(ctx context.Context, signer address.Address, b []byte) (*crypto.Signature, error) {
	return &crypto.Signature{Type: crypto.SigTypeBLS, Data: []byte("devnode-signature")}, nil
}

// VerifySignature accepts any non-empty signature produced by SignBytes;
// it performs no real cryptographic check.
func (n *Node) VerifySignature(ctx context.Context, signature crypto.Signature, signer address.Address, plaintext []byte, tok storagemarket.TipSetToken) (bool, error) {
	return len(signature.Data) > 0, nil
}

func (n *Node) WaitForMessage(ctx context.Context, mcid cid.Cid, onCompletion func(exitcode.ExitCode, []byte, cid.Cid, error) error) error {
	return onCompletion(exitcode.Ok, nil, mcid, nil)
}

func (n *Node) DealProviderCollateralBounds(ctx context.Context, size abi.PaddedPieceSize, isVerified bool) (abi.TokenAmount, abi.TokenAmount, error) {
	return big.Zero(), big.NewInt(1 << 40), nil
}

func (n *Node) OnDealSectorPreCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, proposal storagemarket.DealProposal, publishCid *cid.Cid, cb storagemarket.DealSectorPreCommittedCallback) error {
	return nil
}

func (n *Node) OnDealSectorCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, sectorNumber abi.SectorNumber, proposal storagemarket.DealProposal, publishCid *cid.Cid, cb storagemarket.DealSectorCommittedCallback) error {
	return nil
}

// OnDealExpiredOrSlashed never fires either callback: there is no chain to
// watch for expiration or slashing.
func (n *Node) OnDealExpiredOrSlashed(ctx context.Context, dealID abi.DealID, onExpired storagemarket.DealExpiredCallback, onSlashed storagemarket.DealSlashedCallback) error {
	return nil
}

func (n *Node) PublishDeals(ctx context.Context, deal storagemarket.MinerDeal) (cid.Cid, error) {
	return deal.ProposalCID, nil
}

func (n *Node) WaitForPublishDeals(ctx context.Context, mcid cid.Cid, proposal storagemarket.DealProposal) (*storagemarket.PublishDealsWaitResult, error) {
	n.lk.Lock()
	id := n.nextDeal
	n.nextDeal++
	n.lk.Unlock()
	return &storagemarket.PublishDealsWaitResult{DealID: id, FinalCid: mcid}, nil
}

func (n *Node) OnDealComplete(ctx context.Context, deal storagemarket.MinerDeal, pieceSize abi.UnpaddedPieceSize, pieceReader io.Reader) error {
	log.Infof("deal %s handed off to sealing (no-op): %d bytes", deal.ProposalCID, pieceSize)
	return nil
}

func (n *Node) GetMinerWorkerAddress(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (address.Address, error) {
	return n.worker, nil
}

func (n *Node) GetProofType(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (abi.RegisteredSealProof, error) {
	return abi.RegisteredSealProof(0), nil
}

// ValidatePublishedDeal always succeeds: a real chain client would confirm
// the proposal's presence in a landed PublishStorageDeals message and
// return its assigned DealID, which this local stand-in cannot observe
// across processes.
func (n *Node) ValidatePublishedDeal(ctx context.Context, deal storagemarket.ClientDeal) (abi.DealID, error) {
	return abi.DealID(0), nil
}

func (n *Node) SignProposal(ctx context.Context, signer address.Address, proposal storagemarket.DealProposal) (*storagemarket.ClientDealProposal, error) {
	sig, err := n.SignBytes(ctx, signer, nil)
	if err != nil {
		return nil, err
	}
	return &storagemarket.ClientDealProposal{Proposal: proposal, ClientSignature: *sig}, nil
}

func (n *Node) GetDefaultWalletAddress(ctx context.Context) (address.Address, error) {
	return n.self, nil
}
