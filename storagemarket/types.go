package storagemarket

import (
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
)

// StorageDealStatus is the local state of a deal on either side of a
// negotiation. Every value here appears in spec.md's shared state set;
// role-specific states are marked below.
type StorageDealStatus = uint64

const (
	StorageDealUnknown = StorageDealStatus(iota)

	StorageDealProposalAccepted
	StorageDealValidating
	StorageDealAcceptWait
	StorageDealStartDataTransfer
	StorageDealTransferring
	StorageDealWaitingForData
	StorageDealVerifyData
	StorageDealEnsureProviderFunds
	StorageDealProviderFunding
	StorageDealClientFunding
	StorageDealEnsureClientFunds
	StorageDealFundsEnsured
	StorageDealPublish
	StorageDealPublishing
	StorageDealStaged
	StorageDealSealing
	StorageDealFinalizing
	StorageDealActive
	StorageDealExpired
	StorageDealCompleted
	StorageDealFailing
	StorageDealError
	StorageDealSlashed
	StorageDealRejecting
	StorageDealRejected

	// StorageDealCheckForAcceptance is client-only: waiting on a Response
	// from the provider after the proposal has been sent.
	StorageDealCheckForAcceptance
)

// DealStates names every status above for logging/UI purposes, grounded on
// go-fil-markets' DealStates map.
var DealStates = map[StorageDealStatus]string{
	StorageDealUnknown:             "StorageDealUnknown",
	StorageDealProposalAccepted:    "StorageDealProposalAccepted",
	StorageDealValidating:          "StorageDealValidating",
	StorageDealAcceptWait:          "StorageDealAcceptWait",
	StorageDealStartDataTransfer:   "StorageDealStartDataTransfer",
	StorageDealTransferring:        "StorageDealTransferring",
	StorageDealWaitingForData:      "StorageDealWaitingForData",
	StorageDealVerifyData:          "StorageDealVerifyData",
	StorageDealEnsureProviderFunds: "StorageDealEnsureProviderFunds",
	StorageDealProviderFunding:     "StorageDealProviderFunding",
	StorageDealClientFunding:       "StorageDealClientFunding",
	StorageDealEnsureClientFunds:   "StorageDealEnsureClientFunds",
	StorageDealFundsEnsured:        "StorageDealFundsEnsured",
	StorageDealPublish:             "StorageDealPublish",
	StorageDealPublishing:          "StorageDealPublishing",
	StorageDealStaged:              "StorageDealStaged",
	StorageDealSealing:             "StorageDealSealing",
	StorageDealFinalizing:          "StorageDealFinalizing",
	StorageDealActive:              "StorageDealActive",
	StorageDealExpired:             "StorageDealExpired",
	StorageDealCompleted:           "StorageDealCompleted",
	StorageDealFailing:             "StorageDealFailing",
	StorageDealError:               "StorageDealError",
	StorageDealSlashed:             "StorageDealSlashed",
	StorageDealRejecting:           "StorageDealRejecting",
	StorageDealRejected:            "StorageDealRejected",
	StorageDealCheckForAcceptance:  "StorageDealCheckForAcceptance",
}

// IsTerminalStatus matches spec.md's terminal set: completed, error,
// expired, slashed, rejected. No transition may leave these states.
func IsTerminalStatus(s StorageDealStatus) bool {
	switch s {
	case StorageDealCompleted, StorageDealError, StorageDealExpired, StorageDealSlashed, StorageDealRejected:
		return true
	default:
		return false
	}
}

// TransferType tags how the provider obtains the deal's bytes.
type TransferType = string

const (
	TTManual    TransferType = "manual"
	TTGraphsync TransferType = "graphsync"
)

// DealRef is how the provider obtains the bytes for a deal.
type DealRef struct {
	TransferType TransferType
	Root         cid.Cid
	PieceCid     *cid.Cid // optional, required for manual transfer
}

// DealProposal are the negotiated terms of a storage deal, before signature.
type DealProposal struct {
	PieceCID     cid.Cid
	PieceSize    abi.PaddedPieceSize
	VerifiedDeal bool
	Client       address.Address
	Provider     address.Address

	StartEpoch abi.ChainEpoch
	EndEpoch   abi.ChainEpoch

	StoragePricePerEpoch abi.TokenAmount
	ProviderCollateral   abi.TokenAmount
	ClientCollateral     abi.TokenAmount
}

// Duration is EndEpoch - StartEpoch.
func (p *DealProposal) Duration() abi.ChainEpoch {
	return p.EndEpoch - p.StartEpoch
}

// TotalStorageFee is the undiscounted total price of the deal.
func (p *DealProposal) TotalStorageFee() abi.TokenAmount {
	return big.Mul(p.StoragePricePerEpoch, big.NewInt(int64(p.Duration())))
}

// ClientBalanceRequirement is the total amount the client must have
// available in escrow to enter this deal: the full storage fee plus its
// collateral.
func (p *DealProposal) ClientBalanceRequirement() abi.TokenAmount {
	return big.Add(p.TotalStorageFee(), p.ClientCollateral)
}

// ClientDealProposal is a DealProposal plus the client's signature over its
// canonical encoding. ProposalCID is derived from this whole structure.
type ClientDealProposal struct {
	Proposal        DealProposal
	ClientSignature crypto.Signature
}

// MinerDeal is the provider-side in-flight record for a deal.
type MinerDeal struct {
	ClientDealProposal
	ProposalCID cid.Cid
	AddFundsCid *cid.Cid

	Miner  peer.ID
	Client peer.ID
	State  StorageDealStatus

	PiecePath     string // non-empty once data has been received/verified
	MetadataPath  string
	SectorNumber  abi.SectorNumber
	DealID        abi.DealID
	PublishCid    *cid.Cid
	Ref           *DealRef
	AvailableForRetrieval bool

	Message          string
	FastRetrieval    bool
	ConnectionClosed bool

	FundsReserved abi.TokenAmount
	CreationTime  time.Time
}

// ClientDeal is the client-side in-flight record for a deal.
type ClientDeal struct {
	ClientDealProposal
	ProposalCID cid.Cid
	AddFundsCid *cid.Cid

	State StorageDealStatus

	Miner       peer.ID
	MinerWorker address.Address
	DealID      abi.DealID

	DataRef        *DealRef
	PublishMessage *cid.Cid

	Message       string
	SlashEpoch    abi.ChainEpoch
	FastRetrieval bool

	FundsReserved abi.TokenAmount
	CreationTime  time.Time
}

// StorageProviderInfo is a provider's advertised identity.
type StorageProviderInfo struct {
	Address    address.Address
	Worker     address.Address
	SectorSize uint64
	PeerID     peer.ID
	Addrs      []string
}

// StorageAsk are the unsigned ask parameters.
type StorageAsk struct {
	Price         abi.TokenAmount
	VerifiedPrice abi.TokenAmount
	MinPieceSize  abi.PaddedPieceSize
	MaxPieceSize  abi.PaddedPieceSize
	Miner         address.Address
	Timestamp     abi.ChainEpoch
	Expiry        abi.ChainEpoch
	SeqNo         uint64
}

// SignedStorageAsk is a StorageAsk plus the worker's signature over its
// canonical encoding.
type SignedStorageAsk struct {
	Ask       *StorageAsk
	Signature *crypto.Signature
}

// StorageAskOption mutates a StorageAsk before it is signed; used by
// (*storedask.StoredAsk).SetAsk to override the min/max piece size defaults.
type StorageAskOption func(*StorageAsk)

// MinPieceSize overrides the default minimum piece size on a new ask.
func MinPieceSize(size abi.PaddedPieceSize) StorageAskOption {
	return func(a *StorageAsk) { a.MinPieceSize = size }
}

// MaxPieceSize overrides the default maximum piece size on a new ask.
func MaxPieceSize(size abi.PaddedPieceSize) StorageAskOption {
	return func(a *StorageAsk) { a.MaxPieceSize = size }
}
