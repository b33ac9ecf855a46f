package storagemarket

// External collaborator contracts (spec.md §6). Nothing in this file is
// implemented by this module: the peer-to-peer host, the blockchain client,
// the keystore and piece-I/O are all out of scope. The FSMs in
// storagemarket/impl only ever consume these as interface parameters.

import (
	"context"
	"io"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
)

// TipSetToken opaquely identifies a tipset to the chain client; the core
// never inspects its contents, only threads it through calls that need a
// consistent view of chain state.
type TipSetToken []byte

// DealSectorPreCommittedCallback runs when a deal's sector has been
// pre-committed on chain, or the deal was found already active.
type DealSectorPreCommittedCallback func(sectorNumber abi.SectorNumber, isActive bool, err error)

// DealSectorCommittedCallback runs when a deal's sector has been proven and
// the deal is active.
type DealSectorCommittedCallback func(err error)

// DealExpiredCallback runs when a deal's end epoch is reached without slash.
type DealExpiredCallback func(err error)

// DealSlashedCallback runs when a deal's sector is slashed before expiry.
type DealSlashedCallback func(slashEpoch abi.ChainEpoch, err error)

// Balance is a storage-participant's locked/available funds on the market actor.
type Balance struct {
	Locked    abi.TokenAmount
	Available abi.TokenAmount
}

// PublishDealsWaitResult is returned once a PublishStorageDeals message has
// landed on chain and its DealID has been extracted from the receipt.
type PublishDealsWaitResult struct {
	DealID   abi.DealID
	FinalCid cid.Cid
}

// StorageProviderNode is the blockchain-client facade consumed by the
// provider FSM (component F). Every method suspends the calling FSM action
// and resumes it by posting an event back onto the deal's event queue (see
// spec.md §5); no implementation lives in this module.
type StorageProviderNode interface {
	GetChainHead(ctx context.Context) (TipSetToken, abi.ChainEpoch, error)
	AddFunds(ctx context.Context, addr address.Address, amount abi.TokenAmount) (cid.Cid, error)
	ReserveFunds(ctx context.Context, wallet, addr address.Address, amt abi.TokenAmount) (cid.Cid, error)
	ReleaseFunds(ctx context.Context, addr address.Address, amt abi.TokenAmount) error
	VerifySignature(ctx context.Context, signature crypto.Signature, signer address.Address, plaintext []byte, tok TipSetToken) (bool, error)
	WaitForMessage(ctx context.Context, mcid cid.Cid, onCompletion func(exitcode.ExitCode, []byte, cid.Cid, error) error) error
	SignBytes(ctx context.Context, signer address.Address, b []byte) (*crypto.Signature, error)
	DealProviderCollateralBounds(ctx context.Context, size abi.PaddedPieceSize, isVerified bool) (min, max abi.TokenAmount, err error)
	OnDealSectorPreCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, proposal DealProposal, publishCid *cid.Cid, cb DealSectorPreCommittedCallback) error
	OnDealSectorCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, sectorNumber abi.SectorNumber, proposal DealProposal, publishCid *cid.Cid, cb DealSectorCommittedCallback) error
	OnDealExpiredOrSlashed(ctx context.Context, dealID abi.DealID, onExpired DealExpiredCallback, onSlashed DealSlashedCallback) error
	PublishDeals(ctx context.Context, deal MinerDeal) (cid.Cid, error)
	WaitForPublishDeals(ctx context.Context, mcid cid.Cid, proposal DealProposal) (*PublishDealsWaitResult, error)
	OnDealComplete(ctx context.Context, deal MinerDeal, pieceSize abi.UnpaddedPieceSize, pieceReader io.Reader) error
	GetMinerWorkerAddress(ctx context.Context, addr address.Address, tok TipSetToken) (address.Address, error)
	GetProofType(ctx context.Context, addr address.Address, tok TipSetToken) (abi.RegisteredSealProof, error)
	GetBalance(ctx context.Context, addr address.Address, tok TipSetToken) (Balance, error)
}

// StorageClientNode is the blockchain-client facade consumed by the client
// FSM. It is the mirror image of StorageProviderNode with client-side
// concerns (validating the provider's published deal, tracking its own
// escrow) in place of sealing/handoff concerns.
type StorageClientNode interface {
	GetChainHead(ctx context.Context) (TipSetToken, abi.ChainEpoch, error)
	AddFunds(ctx context.Context, addr address.Address, amount abi.TokenAmount) (cid.Cid, error)
	ReserveFunds(ctx context.Context, wallet, addr address.Address, amt abi.TokenAmount) (cid.Cid, error)
	ReleaseFunds(ctx context.Context, addr address.Address, amt abi.TokenAmount) error
	GetBalance(ctx context.Context, addr address.Address, tok TipSetToken) (Balance, error)
	ValidatePublishedDeal(ctx context.Context, deal ClientDeal) (abi.DealID, error)
	SignProposal(ctx context.Context, signer address.Address, proposal DealProposal) (*ClientDealProposal, error)
	VerifySignature(ctx context.Context, signature crypto.Signature, signer address.Address, plaintext []byte, tok TipSetToken) (bool, error)
	SignBytes(ctx context.Context, signer address.Address, b []byte) (*crypto.Signature, error)
	GetDefaultWalletAddress(ctx context.Context) (address.Address, error)
	OnDealSectorPreCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, proposal DealProposal, publishCid *cid.Cid, cb DealSectorPreCommittedCallback) error
	OnDealSectorCommitted(ctx context.Context, provider address.Address, dealID abi.DealID, sectorNumber abi.SectorNumber, proposal DealProposal, publishCid *cid.Cid, cb DealSectorCommittedCallback) error
	OnDealExpiredOrSlashed(ctx context.Context, dealID abi.DealID, onExpired DealExpiredCallback, onSlashed DealSlashedCallback) error
	WaitForMessage(ctx context.Context, mcid cid.Cid, onCompletion func(exitcode.ExitCode, []byte, cid.Cid, error) error) error
}

// Keystore is the out-of-scope signer consumed indirectly through
// StorageProviderNode.SignBytes/StorageClientNode.SignProposal; declared
// here only as the minimal contract those calls rely on.
type Keystore interface {
	Sign(ctx context.Context, address address.Address, data []byte) (*crypto.Signature, error)
	Verify(ctx context.Context, address address.Address, data []byte, sig *crypto.Signature) (bool, error)
}

// PieceIO is the out-of-scope piece-commitment computation consumed by the
// provider's "verify piece commitment" action.
type PieceIO interface {
	GeneratePieceCommitment(proofType abi.RegisteredSealProof, data io.Reader, pieceSize abi.UnpaddedPieceSize) (cid.Cid, abi.UnpaddedPieceSize, error)
}
