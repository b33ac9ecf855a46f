// Package clientstates holds the client-side deal FSM: the event table that
// declares legal transitions and the state-entry actions that run on
// entering each non-terminal state. It mirrors providerstates, reconstructed
// from the client-side action and state names documented in go-fil-markets'
// clientstates package (the production client_fsm.go/client_states.go were
// not present in the retrieved corpus; only the test file's call sites
// were, and this is built to satisfy them).
package clientstates

import (
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

// ClientEvents are the events that can occur while a client processes a
// deal, the mirror image of providerstates.ProviderEvents.
var ClientEvents = fsm.Events{
	fsm.Event(storagemarket.ClientEventOpen).
		From(storagemarket.StorageDealUnknown).To(storagemarket.StorageDealEnsureClientFunds),

	fsm.Event(storagemarket.ClientEventNodeErrored).
		FromAny().To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("error calling node: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventEnsureFundsFailed).
		FromMany(storagemarket.StorageDealEnsureClientFunds, storagemarket.StorageDealClientFunding).
		To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("adding market funds failed: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventFundingInitiated).
		From(storagemarket.StorageDealEnsureClientFunds).To(storagemarket.StorageDealClientFunding).
		Action(func(deal *storagemarket.ClientDeal, mcid cid.Cid) error {
			deal.AddFundsCid = &mcid
			return nil
		}),

	fsm.Event(storagemarket.ClientEventFundsReserved).
		From(storagemarket.StorageDealEnsureClientFunds).ToJustRecord().
		Action(func(deal *storagemarket.ClientDeal, amt abi.TokenAmount) error {
			if deal.FundsReserved.Nil() {
				deal.FundsReserved = amt
			} else {
				deal.FundsReserved = big.Add(deal.FundsReserved, amt)
			}
			return nil
		}),

	fsm.Event(storagemarket.ClientEventFunded).
		FromMany(storagemarket.StorageDealEnsureClientFunds, storagemarket.StorageDealClientFunding).
		To(storagemarket.StorageDealFundsEnsured),

	fsm.Event(storagemarket.ClientEventFundsReleased).
		FromMany(storagemarket.StorageDealProposalAccepted, storagemarket.StorageDealFailing).ToJustRecord().
		Action(func(deal *storagemarket.ClientDeal, amt abi.TokenAmount) error {
			deal.FundsReserved = big.Subtract(deal.FundsReserved, amt)
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealStreamLookupErrored).
		From(storagemarket.StorageDealFundsEnsured).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("connecting to storage provider failed: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventWriteProposalFailed).
		From(storagemarket.StorageDealFundsEnsured).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("sending proposal to storage provider failed: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventReadResponseFailed).
		From(storagemarket.StorageDealFundsEnsured).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("error reading Response message from provider: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventResponseVerificationFailed).
		From(storagemarket.StorageDealFundsEnsured).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal) error {
			deal.Message = "unable to verify signature on deal response"
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealRejected).
		FromMany(storagemarket.StorageDealFundsEnsured, storagemarket.StorageDealCheckForAcceptance).
		To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = err.Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventProposalAcked).
		From(storagemarket.StorageDealFundsEnsured).To(storagemarket.StorageDealStartDataTransfer),

	fsm.Event(storagemarket.ClientEventTransferInitiated).
		From(storagemarket.StorageDealStartDataTransfer).To(storagemarket.StorageDealTransferring),

	fsm.Event(storagemarket.ClientEventDataTransferFailed).
		From(storagemarket.StorageDealTransferring).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("failed to send piece data: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDataTransferComplete).
		FromMany(storagemarket.StorageDealStartDataTransfer, storagemarket.StorageDealTransferring).
		To(storagemarket.StorageDealCheckForAcceptance),

	fsm.Event(storagemarket.ClientEventDealAccepted).
		From(storagemarket.StorageDealCheckForAcceptance).To(storagemarket.StorageDealProposalAccepted),

	fsm.Event(storagemarket.ClientEventDealPublishFailed).
		From(storagemarket.StorageDealProposalAccepted).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("error validating deal published: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealPublished).
		From(storagemarket.StorageDealProposalAccepted).To(storagemarket.StorageDealSealing).
		Action(func(deal *storagemarket.ClientDeal, dealID abi.DealID) error {
			deal.DealID = dealID
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealActivationFailed).
		From(storagemarket.StorageDealSealing).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("error in deal activation: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealActivated).
		From(storagemarket.StorageDealSealing).To(storagemarket.StorageDealActive),

	fsm.Event(storagemarket.ClientEventDealSlashed).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealSlashed).
		Action(func(deal *storagemarket.ClientDeal, slashEpoch abi.ChainEpoch) error {
			deal.SlashEpoch = slashEpoch
			return nil
		}),

	fsm.Event(storagemarket.ClientEventDealExpired).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealCompleted),

	fsm.Event(storagemarket.ClientEventDealCompletionFailed).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.ClientDeal, err error) error {
			deal.Message = xerrors.Errorf("error waiting for deal completion: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ClientEventFailed).
		From(storagemarket.StorageDealFailing).To(storagemarket.StorageDealError),
}

// ClientStateEntryFuncs are the handlers run on entering each non-terminal
// client-side deal state.
var ClientStateEntryFuncs = fsm.StateEntryFuncs{
	storagemarket.StorageDealEnsureClientFunds: ReserveClientFunds,
	storagemarket.StorageDealClientFunding:     WaitForFunding,
	storagemarket.StorageDealFundsEnsured:      ProposeDeal,
	storagemarket.StorageDealStartDataTransfer: InitiateDataTransfer,
	storagemarket.StorageDealTransferring:      AwaitTransfer,
	storagemarket.StorageDealCheckForAcceptance: CheckForDealAcceptance,
	storagemarket.StorageDealProposalAccepted:   ValidateDealPublished,
	storagemarket.StorageDealSealing:            VerifyDealActivated,
	storagemarket.StorageDealActive:             WaitForDealCompletion,
	storagemarket.StorageDealFailing:            FailDeal,
}

// ClientFinalityStates are the states that end client processing for a
// deal. On restart, only deals outside this set are re-entered.
var ClientFinalityStates = []fsm.StateKey{
	storagemarket.StorageDealError,
	storagemarket.StorageDealSlashed,
	storagemarket.StorageDealCompleted,
}
