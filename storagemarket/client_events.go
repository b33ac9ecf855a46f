package storagemarket

// ClientEvent is posted to a ClientDeal's fsm.Group to advance its state,
// the mirror image of ProviderEvent for the client side of a negotiation.
type ClientEvent uint64

const (
	// ClientEventOpen indicates a new deal proposal is about to be sent.
	ClientEventOpen ClientEvent = iota

	// ClientEventNodeErrored indicates a call to the node (chain client)
	// failed.
	ClientEventNodeErrored

	// ClientEventEnsureFundsFailed indicates the funds reservation call
	// itself failed.
	ClientEventEnsureFundsFailed
	// ClientEventFundingInitiated indicates a message adding client market
	// collateral was sent.
	ClientEventFundingInitiated
	// ClientEventFundsReserved records a successful funds reservation
	// without itself advancing the deal's state.
	ClientEventFundsReserved
	// ClientEventFunded indicates the client now has sufficient funds
	// locked for this deal.
	ClientEventFunded
	// ClientEventFundsReleased records funds being given back to the
	// client's available balance.
	ClientEventFundsReleased

	// ClientEventDealStreamLookupErrored indicates the provider could not
	// be reached to open a deal stream.
	ClientEventDealStreamLookupErrored
	// ClientEventWriteProposalFailed indicates the proposal could not be
	// written to the deal stream.
	ClientEventWriteProposalFailed
	// ClientEventReadResponseFailed indicates the provider's response
	// could not be read off the deal stream.
	ClientEventReadResponseFailed
	// ClientEventResponseVerificationFailed indicates the provider's
	// acceptance response did not carry a valid signature.
	ClientEventResponseVerificationFailed
	// ClientEventDealRejected indicates the provider declined or failed the
	// proposal, either in its immediate response or later over DealStatus.
	ClientEventDealRejected
	// ClientEventProposalAcked indicates the provider's immediate response
	// accepted the proposal and the client may start delivering data.
	ClientEventProposalAcked

	// ClientEventTransferInitiated indicates the client is pushing piece
	// bytes to the provider (graphsync-equivalent path).
	ClientEventTransferInitiated
	// ClientEventDataTransferFailed indicates the transfer did not
	// complete.
	ClientEventDataTransferFailed
	// ClientEventDataTransferComplete indicates all piece bytes have been
	// delivered, or delivery is happening out of band (manual transfer).
	ClientEventDataTransferComplete

	// ClientEventDealAccepted indicates polling the provider's DealStatus
	// protocol showed the deal advancing past acceptance.
	ClientEventDealAccepted

	// ClientEventDealPublishFailed indicates the client could not confirm
	// the deal was published on chain.
	ClientEventDealPublishFailed
	// ClientEventDealPublished indicates the client has observed the
	// deal's DealID on chain.
	ClientEventDealPublished

	// ClientEventDealActivationFailed indicates the chain-event watcher
	// reported an error waiting for sector commitment.
	ClientEventDealActivationFailed
	// ClientEventDealActivated indicates the deal's sector has been
	// proven and the deal is on-chain active.
	ClientEventDealActivated

	// ClientEventDealSlashed indicates the deal's sector was slashed
	// before its end epoch.
	ClientEventDealSlashed
	// ClientEventDealExpired indicates the deal reached its end epoch
	// without being slashed.
	ClientEventDealExpired
	// ClientEventDealCompletionFailed indicates an error waiting for
	// expiration or slashing.
	ClientEventDealCompletionFailed

	// ClientEventFailed moves a deal out of failing into its terminal
	// error state.
	ClientEventFailed
)

// ClientEvents names every ClientEvent for logging and the Notifier
// callback.
var ClientEvents = map[ClientEvent]string{
	ClientEventOpen:                       "ClientEventOpen",
	ClientEventNodeErrored:                "ClientEventNodeErrored",
	ClientEventEnsureFundsFailed:           "ClientEventEnsureFundsFailed",
	ClientEventFundingInitiated:            "ClientEventFundingInitiated",
	ClientEventFundsReserved:               "ClientEventFundsReserved",
	ClientEventFunded:                      "ClientEventFunded",
	ClientEventFundsReleased:               "ClientEventFundsReleased",
	ClientEventDealStreamLookupErrored:     "ClientEventDealStreamLookupErrored",
	ClientEventWriteProposalFailed:         "ClientEventWriteProposalFailed",
	ClientEventReadResponseFailed:          "ClientEventReadResponseFailed",
	ClientEventResponseVerificationFailed:  "ClientEventResponseVerificationFailed",
	ClientEventDealRejected:                "ClientEventDealRejected",
	ClientEventProposalAcked:               "ClientEventProposalAcked",
	ClientEventTransferInitiated:           "ClientEventTransferInitiated",
	ClientEventDataTransferFailed:          "ClientEventDataTransferFailed",
	ClientEventDataTransferComplete:        "ClientEventDataTransferComplete",
	ClientEventDealAccepted:                "ClientEventDealAccepted",
	ClientEventDealPublishFailed:           "ClientEventDealPublishFailed",
	ClientEventDealPublished:               "ClientEventDealPublished",
	ClientEventDealActivationFailed:        "ClientEventDealActivationFailed",
	ClientEventDealActivated:               "ClientEventDealActivated",
	ClientEventDealSlashed:                 "ClientEventDealSlashed",
	ClientEventDealExpired:                 "ClientEventDealExpired",
	ClientEventDealCompletionFailed:        "ClientEventDealCompletionFailed",
	ClientEventFailed:                      "ClientEventFailed",
}

// ClientSubscriber is called with every event a client's deals experience,
// in the order they occur.
type ClientSubscriber func(event ClientEvent, deal ClientDeal)
