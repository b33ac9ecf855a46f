// Package providerstates holds the provider-side deal FSM: the event table
// that declares legal transitions and the state-entry actions that run on
// entering each non-terminal state.
package providerstates

import (
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

// ProviderEvents are the events that can occur while a provider processes a
// deal, grounded on go-fil-markets' storagemarket/impl/providerstates's
// event table and adapted to this module's simplified state set. The one
// deliberate departure: ProviderEventRejectionSent transitions directly
// from Rejecting to Rejected, rather than through Failing/Error, matching
// the literal wording of the reject scenario ("validating → rejecting →
// rejected").
var ProviderEvents = fsm.Events{
	fsm.Event(storagemarket.ProviderEventOpen).
		From(storagemarket.StorageDealUnknown).To(storagemarket.StorageDealValidating),

	fsm.Event(storagemarket.ProviderEventNodeErrored).
		FromAny().To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("error calling node: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealRejected).
		FromMany(storagemarket.StorageDealValidating, storagemarket.StorageDealAcceptWait).
		To(storagemarket.StorageDealRejecting).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("deal rejected: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventRejectionSent).
		From(storagemarket.StorageDealRejecting).To(storagemarket.StorageDealRejected),

	fsm.Event(storagemarket.ProviderEventSendResponseFailed).
		FromMany(storagemarket.StorageDealAcceptWait, storagemarket.StorageDealRejecting).
		To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("sending response to deal: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealDeciding).
		From(storagemarket.StorageDealValidating).To(storagemarket.StorageDealAcceptWait),

	fsm.Event(storagemarket.ProviderEventDealAccepted).
		From(storagemarket.StorageDealAcceptWait).To(storagemarket.StorageDealProposalAccepted),

	fsm.Event(storagemarket.ProviderEventDataRequested).
		From(storagemarket.StorageDealProposalAccepted).To(storagemarket.StorageDealWaitingForData),

	fsm.Event(storagemarket.ProviderEventTransferInitiated).
		From(storagemarket.StorageDealProposalAccepted).To(storagemarket.StorageDealTransferring),

	fsm.Event(storagemarket.ProviderEventDataTransferFailed).
		From(storagemarket.StorageDealTransferring).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("error transferring data: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDataTransferCompleted).
		FromMany(storagemarket.StorageDealTransferring, storagemarket.StorageDealWaitingForData).
		To(storagemarket.StorageDealVerifyData).
		Action(func(deal *storagemarket.MinerDeal, piecePath string) error {
			deal.PiecePath = piecePath
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDataVerificationFailed).
		From(storagemarket.StorageDealVerifyData).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("deal data verification failed: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventVerifiedData).
		From(storagemarket.StorageDealVerifyData).To(storagemarket.StorageDealEnsureProviderFunds),

	fsm.Event(storagemarket.ProviderEventFundingInitiated).
		From(storagemarket.StorageDealEnsureProviderFunds).To(storagemarket.StorageDealProviderFunding).
		Action(func(deal *storagemarket.MinerDeal, mcid cid.Cid) error {
			deal.AddFundsCid = &mcid
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventFunded).
		FromMany(storagemarket.StorageDealEnsureProviderFunds, storagemarket.StorageDealProviderFunding).
		To(storagemarket.StorageDealPublish),

	fsm.Event(storagemarket.ProviderEventFundsReserved).
		From(storagemarket.StorageDealEnsureProviderFunds).ToJustRecord().
		Action(func(deal *storagemarket.MinerDeal, amt abi.TokenAmount) error {
			if deal.FundsReserved.Nil() {
				deal.FundsReserved = amt
			} else {
				deal.FundsReserved = big.Add(deal.FundsReserved, amt)
			}
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventFundsReleased).
		FromMany(storagemarket.StorageDealPublishing, storagemarket.StorageDealFailing).ToJustRecord().
		Action(func(deal *storagemarket.MinerDeal, amt abi.TokenAmount) error {
			deal.FundsReserved = big.Subtract(deal.FundsReserved, amt)
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventTrackFundsFailed).
		From(storagemarket.StorageDealEnsureProviderFunds).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("error tracking deal funds: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealPublishInitiated).
		From(storagemarket.StorageDealPublish).To(storagemarket.StorageDealPublishing).
		Action(func(deal *storagemarket.MinerDeal, mcid cid.Cid) error {
			deal.PublishCid = &mcid
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealPublishError).
		From(storagemarket.StorageDealPublishing).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("publishing deal: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealPublished).
		From(storagemarket.StorageDealPublishing).To(storagemarket.StorageDealStaged).
		Action(func(deal *storagemarket.MinerDeal, dealID abi.DealID, finalCid cid.Cid) error {
			deal.DealID = dealID
			deal.PublishCid = &finalCid
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealHandoffFailed).
		From(storagemarket.StorageDealStaged).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("handing off deal to sealing subsystem: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealHandedOff).
		From(storagemarket.StorageDealStaged).To(storagemarket.StorageDealSealing).
		Action(func(deal *storagemarket.MinerDeal) error {
			deal.AvailableForRetrieval = true
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealActivationFailed).
		From(storagemarket.StorageDealSealing).To(storagemarket.StorageDealFailing).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("error activating deal: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventDealActivated).
		From(storagemarket.StorageDealSealing).To(storagemarket.StorageDealFinalizing),

	fsm.Event(storagemarket.ProviderEventFinalized).
		From(storagemarket.StorageDealFinalizing).To(storagemarket.StorageDealActive),

	fsm.Event(storagemarket.ProviderEventDealSlashed).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealSlashed),

	fsm.Event(storagemarket.ProviderEventDealExpired).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealCompleted),

	fsm.Event(storagemarket.ProviderEventDealCompletionFailed).
		From(storagemarket.StorageDealActive).To(storagemarket.StorageDealError).
		Action(func(deal *storagemarket.MinerDeal, err error) error {
			deal.Message = xerrors.Errorf("error waiting for deal completion: %w", err).Error()
			return nil
		}),

	fsm.Event(storagemarket.ProviderEventFailed).
		From(storagemarket.StorageDealFailing).To(storagemarket.StorageDealError),
}

// ProviderStateEntryFuncs are the handlers run on entering each
// non-terminal provider-side deal state.
var ProviderStateEntryFuncs = fsm.StateEntryFuncs{
	storagemarket.StorageDealValidating:          ValidateDealProposal,
	storagemarket.StorageDealAcceptWait:          DecideOnProposal,
	storagemarket.StorageDealProposalAccepted:    RequestOrInitiateTransfer,
	storagemarket.StorageDealTransferring:        AwaitTransfer,
	storagemarket.StorageDealVerifyData:          VerifyData,
	storagemarket.StorageDealEnsureProviderFunds: ReserveProviderFunds,
	storagemarket.StorageDealProviderFunding:     WaitForProviderFunding,
	storagemarket.StorageDealPublish:             PublishDeal,
	storagemarket.StorageDealPublishing:          WaitForPublish,
	storagemarket.StorageDealStaged:               HandoffDeal,
	storagemarket.StorageDealSealing:              VerifyDealActivated,
	storagemarket.StorageDealRejecting:            RejectDeal,
	storagemarket.StorageDealFinalizing:           CleanupDeal,
	storagemarket.StorageDealActive:               WaitForDealCompletion,
	storagemarket.StorageDealFailing:              FailDeal,
}

// ProviderFinalityStates are the states that end provider processing for a
// deal. On restart, only deals outside this set are re-entered.
var ProviderFinalityStates = []fsm.StateKey{
	storagemarket.StorageDealError,
	storagemarket.StorageDealSlashed,
	storagemarket.StorageDealCompleted,
	storagemarket.StorageDealRejected,
}
