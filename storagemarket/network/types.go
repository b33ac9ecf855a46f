package network

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

// AskRequest is sent by the client to request a provider's current ask.
type AskRequest struct {
	Miner address.Address
}

// AskResponse is the provider's reply carrying its current signed ask.
type AskResponse struct {
	Ask *storagemarket.SignedStorageAsk
}

// Proposal is sent by the client to open a deal. Piece carries how the
// provider should obtain the bytes (spec.md's DealRef).
type Proposal struct {
	DealProposal *storagemarket.ClientDealProposal
	Piece        *storagemarket.DealRef
	FastRetrieval bool
}

// Response is the provider's reply on the deal stream, before signing.
type Response struct {
	State          storagemarket.StorageDealStatus
	Message        string
	Proposal       cid.Cid
	PublishMessage *cid.Cid
}

// SignedResponse is a Response plus the provider's signature over its
// canonical encoding.
type SignedResponse struct {
	Response  Response
	Signature *crypto.Signature
}

// DealStatusRequest asks the provider for the current status of a deal the
// client already knows the ProposalCID of; Signature authenticates the
// client as the original proposer.
type DealStatusRequest struct {
	Proposal  cid.Cid
	Signature crypto.Signature
}

// DealStatusResponse is the provider's signed reply to a DealStatusRequest.
type DealStatusResponse struct {
	DealState DealState
	Signature crypto.Signature
}

// DealState is the subset of a MinerDeal exposed over the DealStatus protocol.
type DealState struct {
	State          storagemarket.StorageDealStatus
	Message        string
	Proposal       storagemarket.DealProposal
	ProposalCid    cid.Cid
	AddFundsCid    *cid.Cid
	PublishCid     *cid.Cid
}

var (
	ProposalUndefined       = Proposal{}
	SignedResponseUndefined = SignedResponse{}
)
