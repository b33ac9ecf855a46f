package storagemarket

// ProviderEvent is posted to a MinerDeal's fsm.Group to advance its state,
// grounded on go-fil-markets' storagemarket.ProviderEvent enumeration.
type ProviderEvent uint64

const (
	// ProviderEventOpen indicates a new deal proposal has been received.
	ProviderEventOpen ProviderEvent = iota

	// ProviderEventNodeErrored indicates a call to the node (chain client)
	// failed.
	ProviderEventNodeErrored

	// ProviderEventDealRejected indicates the provider will not accept a deal.
	ProviderEventDealRejected
	// ProviderEventRejectionSent indicates the rejection response has been
	// written back to the client and the deal can be forgotten.
	ProviderEventRejectionSent

	// ProviderEventDealDeciding indicates the proposal passed validation and
	// is now subject to the provider's accept/reject decision.
	ProviderEventDealDeciding
	// ProviderEventDealAccepted indicates the provider decided to accept the
	// deal and has sent an acceptance response.
	ProviderEventDealAccepted
	// ProviderEventSendResponseFailed indicates a response could not be
	// written back to the client's deal stream.
	ProviderEventSendResponseFailed

	// ProviderEventDataRequested indicates the provider is now waiting for
	// the client to deliver piece bytes out of band (manual transfer).
	ProviderEventDataRequested
	// ProviderEventTransferInitiated indicates the provider started pulling
	// piece bytes through its PieceTransfer collaborator (graphsync transfer).
	ProviderEventTransferInitiated
	// ProviderEventDataTransferFailed indicates the transfer did not
	// complete.
	ProviderEventDataTransferFailed
	// ProviderEventDataTransferCompleted indicates piece bytes are now on
	// disk and ready for commitment verification.
	ProviderEventDataTransferCompleted

	// ProviderEventDataVerificationFailed indicates the computed piece
	// commitment did not match the proposal.
	ProviderEventDataVerificationFailed
	// ProviderEventVerifiedData indicates the computed piece commitment
	// matched the proposal.
	ProviderEventVerifiedData

	// ProviderEventFundingInitiated indicates a message adding provider
	// collateral was sent to the market actor.
	ProviderEventFundingInitiated
	// ProviderEventFunded indicates the provider now has sufficient
	// collateral locked for this deal.
	ProviderEventFunded
	// ProviderEventFundsReserved records a successful funds reservation
	// without itself advancing the deal's state.
	ProviderEventFundsReserved
	// ProviderEventFundsReleased records funds being given back to the
	// provider's available balance.
	ProviderEventFundsReleased
	// ProviderEventTrackFundsFailed indicates the funds reservation call
	// itself failed.
	ProviderEventTrackFundsFailed

	// ProviderEventDealPublishInitiated indicates a PublishStorageDeals
	// message was sent.
	ProviderEventDealPublishInitiated
	// ProviderEventDealPublishError indicates that message failed on chain
	// or was never confirmed.
	ProviderEventDealPublishError
	// ProviderEventDealPublished indicates the deal's DealID has been
	// extracted from the publish receipt.
	ProviderEventDealPublished

	// ProviderEventDealHandoffFailed indicates the deal's bytes could not
	// be placed into the local sector store.
	ProviderEventDealHandoffFailed
	// ProviderEventDealHandedOff indicates the deal's bytes have been
	// handed to the sealing subsystem.
	ProviderEventDealHandedOff

	// ProviderEventDealActivationFailed indicates the chain-event watcher
	// reported an error waiting for sector commitment.
	ProviderEventDealActivationFailed
	// ProviderEventDealActivated indicates the deal's sector has been
	// proven and the deal is on-chain active.
	ProviderEventDealActivated
	// ProviderEventFinalized indicates post-activation cleanup is complete.
	ProviderEventFinalized

	// ProviderEventDealSlashed indicates the deal's sector was slashed
	// before its end epoch.
	ProviderEventDealSlashed
	// ProviderEventDealExpired indicates the deal reached its end epoch
	// without being slashed.
	ProviderEventDealExpired
	// ProviderEventDealCompletionFailed indicates an error waiting for
	// expiration or slashing.
	ProviderEventDealCompletionFailed

	// ProviderEventFailed moves a deal out of failing into its terminal
	// error state.
	ProviderEventFailed
)

// ProviderEvents names every ProviderEvent for logging and the Notifier
// callback, mirroring go-fil-markets' docsgen event-name maps.
var ProviderEvents = map[ProviderEvent]string{
	ProviderEventOpen:                    "ProviderEventOpen",
	ProviderEventNodeErrored:             "ProviderEventNodeErrored",
	ProviderEventDealRejected:            "ProviderEventDealRejected",
	ProviderEventRejectionSent:           "ProviderEventRejectionSent",
	ProviderEventDealDeciding:            "ProviderEventDealDeciding",
	ProviderEventDealAccepted:            "ProviderEventDealAccepted",
	ProviderEventSendResponseFailed:      "ProviderEventSendResponseFailed",
	ProviderEventDataRequested:           "ProviderEventDataRequested",
	ProviderEventTransferInitiated:       "ProviderEventTransferInitiated",
	ProviderEventDataTransferFailed:      "ProviderEventDataTransferFailed",
	ProviderEventDataTransferCompleted:   "ProviderEventDataTransferCompleted",
	ProviderEventDataVerificationFailed:  "ProviderEventDataVerificationFailed",
	ProviderEventVerifiedData:            "ProviderEventVerifiedData",
	ProviderEventFundingInitiated:        "ProviderEventFundingInitiated",
	ProviderEventFunded:                  "ProviderEventFunded",
	ProviderEventFundsReserved:           "ProviderEventFundsReserved",
	ProviderEventFundsReleased:           "ProviderEventFundsReleased",
	ProviderEventTrackFundsFailed:        "ProviderEventTrackFundsFailed",
	ProviderEventDealPublishInitiated:    "ProviderEventDealPublishInitiated",
	ProviderEventDealPublishError:        "ProviderEventDealPublishError",
	ProviderEventDealPublished:           "ProviderEventDealPublished",
	ProviderEventDealHandoffFailed:       "ProviderEventDealHandoffFailed",
	ProviderEventDealHandedOff:           "ProviderEventDealHandedOff",
	ProviderEventDealActivationFailed:    "ProviderEventDealActivationFailed",
	ProviderEventDealActivated:           "ProviderEventDealActivated",
	ProviderEventFinalized:               "ProviderEventFinalized",
	ProviderEventDealSlashed:             "ProviderEventDealSlashed",
	ProviderEventDealExpired:             "ProviderEventDealExpired",
	ProviderEventDealCompletionFailed:    "ProviderEventDealCompletionFailed",
	ProviderEventFailed:                  "ProviderEventFailed",
}

// ProviderSubscriber is called with every event a provider's deals
// experience, in the order they occur.
type ProviderSubscriber func(event ProviderEvent, deal MinerDeal)
