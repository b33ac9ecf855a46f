package clientstates

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/providerutils"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
)

var log = logging.Logger("clientstates")

// MaxGraceEpochsForDealAcceptance bounds how long CheckForDealAcceptance
// will keep polling past the proposal's StartEpoch before giving up.
const MaxGraceEpochsForDealAcceptance = abi.ChainEpoch(500)

// ClientDealEnvironment are the dependencies a ClientStateEntryFunc needs,
// the mirror image of providerstates.ProviderDealEnvironment.
type ClientDealEnvironment interface {
	Node() storagemarket.StorageClientNode
	NewDealStream(ctx context.Context, miner peer.ID) (network.StorageDealStream, error)
	NewDealStatusStream(ctx context.Context, miner peer.ID) (network.DealStatusStream, error)
	Watcher() *chainevents.SectorCommittedWatcher
	PollingInterval() time.Duration

	// PushData delivers deal.DataRef's bytes to the provider; the
	// push-side counterpart of the provider's PullData. Only used for
	// graphsync-typed transfers; manual transfers are delivered out of
	// band via the provider's ImportDataForDeal.
	PushData(ctx context.Context, deal storagemarket.ClientDeal) error

	network.PeerTagger
}

// ClientStateEntryFunc is the signature for a client deal state's entry
// action.
type ClientStateEntryFunc func(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error

// ReserveClientFunds ensures the client has ClientBalanceRequirement()
// available in escrow before a proposal is sent.
func ReserveClientFunds(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	node := environment.Node()

	waddr, err := node.GetDefaultWalletAddress(ctx.Context())
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventEnsureFundsFailed, xerrors.Errorf("looking up default wallet: %w", err))
	}

	mcid, err := node.ReserveFunds(ctx.Context(), waddr, deal.Proposal.Client, deal.Proposal.ClientBalanceRequirement())
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventEnsureFundsFailed, err)
	}

	_ = ctx.Trigger(storagemarket.ClientEventFundsReserved, deal.Proposal.ClientBalanceRequirement())

	if mcid == cid.Undef {
		return ctx.Trigger(storagemarket.ClientEventFunded)
	}
	return ctx.Trigger(storagemarket.ClientEventFundingInitiated, mcid)
}

// WaitForFunding waits for the add-funds message to land on chain.
func WaitForFunding(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	return environment.Node().WaitForMessage(ctx.Context(), *deal.AddFundsCid, func(code exitcode.ExitCode, _ []byte, _ cid.Cid, err error) error {
		if err != nil {
			return ctx.Trigger(storagemarket.ClientEventEnsureFundsFailed, xerrors.Errorf("AddFunds errored: %w", err))
		}
		if code != exitcode.Ok {
			return ctx.Trigger(storagemarket.ClientEventEnsureFundsFailed, xerrors.Errorf("AddFunds exit code: %d", code))
		}
		return ctx.Trigger(storagemarket.ClientEventFunded)
	})
}

// ProposeDeal sends the client's signed proposal to the provider and reads
// back its immediate accept/reject response.
func ProposeDeal(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	s, err := environment.NewDealStream(ctx.Context(), deal.Miner)
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventDealStreamLookupErrored, err)
	}
	defer s.Close()

	environment.TagPeer(deal.Miner, deal.ProposalCID.String())

	proposal := network.Proposal{
		DealProposal:  &deal.ClientDealProposal,
		Piece:         deal.DataRef,
		FastRetrieval: deal.FastRetrieval,
	}
	if err := s.WriteDealProposal(proposal); err != nil {
		return ctx.Trigger(storagemarket.ClientEventWriteProposalFailed, err)
	}

	resp, origBytes, err := s.ReadDealResponse()
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventReadResponseFailed, err)
	}

	tok, _, err := environment.Node().GetChainHead(ctx.Context())
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventResponseVerificationFailed)
	}
	if err := providerutils.VerifySignature(ctx.Context(), *resp.Signature, deal.MinerWorker, origBytes, tok, environment.Node().VerifySignature); err != nil {
		return ctx.Trigger(storagemarket.ClientEventResponseVerificationFailed)
	}

	if resp.Response.Proposal != deal.ProposalCID {
		return ctx.Trigger(storagemarket.ClientEventDealRejected, xerrors.Errorf("miner responded to a wrong proposal: %s", resp.Response.Proposal))
	}

	if resp.Response.State != storagemarket.StorageDealProposalAccepted {
		return ctx.Trigger(storagemarket.ClientEventDealRejected, xerrors.Errorf("deal rejected: %s", resp.Response.Message))
	}

	return ctx.Trigger(storagemarket.ClientEventProposalAcked)
}

// InitiateDataTransfer branches on the deal's transfer type: manual
// transfers go straight to polling for acceptance, since the bytes are
// handed to the provider out of band; graphsync-typed transfers start the
// push.
func InitiateDataTransfer(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	if deal.DataRef != nil && deal.DataRef.TransferType == storagemarket.TTManual {
		return ctx.Trigger(storagemarket.ClientEventDataTransferComplete)
	}
	return ctx.Trigger(storagemarket.ClientEventTransferInitiated)
}

// AwaitTransfer pushes the deal's piece bytes to the provider.
func AwaitTransfer(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	if err := environment.PushData(ctx.Context(), deal); err != nil {
		return ctx.Trigger(storagemarket.ClientEventDataTransferFailed, err)
	}
	return ctx.Trigger(storagemarket.ClientEventDataTransferComplete)
}

// CheckForDealAcceptance polls the provider's DealStatus protocol until the
// deal is observed to have advanced past acceptance, failed, or the
// proposal's start epoch plus its grace period has elapsed.
func CheckForDealAcceptance(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	go func() {
		ticker := time.NewTicker(environment.PollingInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Context().Done():
				return
			case <-ticker.C:
			}

			if _, curEpoch, err := environment.Node().GetChainHead(ctx.Context()); err == nil {
				if curEpoch > deal.Proposal.StartEpoch+MaxGraceEpochsForDealAcceptance {
					_ = ctx.Trigger(storagemarket.ClientEventDealRejected, xerrors.New("start epoch already elapsed while waiting for deal acceptance"))
					return
				}
			}

			state, err := getProviderDealState(ctx.Context(), environment, deal)
			if err != nil {
				log.Warnf("checking deal status with provider: %s", err)
				continue
			}

			switch state.State {
			case storagemarket.StorageDealFailing, storagemarket.StorageDealError:
				_ = ctx.Trigger(storagemarket.ClientEventDealRejected, xerrors.Errorf("provider failed deal: %s", state.Message))
				return
			case storagemarket.StorageDealUnknown, storagemarket.StorageDealValidating, storagemarket.StorageDealAcceptWait,
				storagemarket.StorageDealProposalAccepted, storagemarket.StorageDealWaitingForData,
				storagemarket.StorageDealStartDataTransfer, storagemarket.StorageDealTransferring:
				continue
			default:
				_ = ctx.Trigger(storagemarket.ClientEventDealAccepted)
				return
			}
		}
	}()
	return nil
}

func getProviderDealState(ctx context.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) (*network.DealState, error) {
	s, err := environment.NewDealStatusStream(ctx, deal.Miner)
	if err != nil {
		return nil, xerrors.Errorf("opening deal status stream: %w", err)
	}
	defer s.Close()

	sig, err := environment.Node().SignBytes(ctx, deal.Proposal.Client, deal.ProposalCID.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("signing status request: %w", err)
	}

	if err := s.WriteDealStatusRequest(network.DealStatusRequest{Proposal: deal.ProposalCID, Signature: *sig}); err != nil {
		return nil, xerrors.Errorf("writing status request: %w", err)
	}

	resp, origBytes, err := s.ReadDealStatusResponse()
	if err != nil {
		return nil, xerrors.Errorf("reading status response: %w", err)
	}

	tok, _, err := environment.Node().GetChainHead(ctx)
	if err != nil {
		return nil, xerrors.Errorf("getting chain head: %w", err)
	}
	if err := providerutils.VerifySignature(ctx, resp.Signature, deal.MinerWorker, origBytes, tok, environment.Node().VerifySignature); err != nil {
		return nil, xerrors.Errorf("verifying status response signature: %w", err)
	}

	return &resp.DealState, nil
}

// ValidateDealPublished confirms the deal's DealID is visible on chain and
// releases any funds still reserved for it.
func ValidateDealPublished(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	environment.UntagPeer(deal.Miner, deal.ProposalCID.String())

	dealID, err := environment.Node().ValidatePublishedDeal(ctx.Context(), deal)
	if err != nil {
		return ctx.Trigger(storagemarket.ClientEventDealPublishFailed, err)
	}

	if !deal.FundsReserved.Nil() && !deal.FundsReserved.IsZero() {
		if err := environment.Node().ReleaseFunds(ctx.Context(), deal.Proposal.Client, deal.FundsReserved); err != nil {
			log.Warnf("failed to release funds: %s", err)
		} else {
			_ = ctx.Trigger(storagemarket.ClientEventFundsReleased, deal.FundsReserved)
		}
	}

	return ctx.Trigger(storagemarket.ClientEventDealPublished, dealID)
}

// VerifyDealActivated watches for this deal's sector to be proven,
// merging lotus's separate AwaitingPreCommit/Sealing states into this
// module's single Sealing state, mirroring providerstates.VerifyDealActivated.
func VerifyDealActivated(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	future := environment.Watcher().OnDealSectorCommitted(deal.Proposal.Provider, deal.DealID)

	go func() {
		select {
		case <-future.Done():
			if err := future.Err(); err != nil {
				_ = ctx.Trigger(storagemarket.ClientEventDealActivationFailed, err)
				return
			}
			_ = ctx.Trigger(storagemarket.ClientEventDealActivated)
		case <-ctx.Context().Done():
		}
	}()

	return nil
}

// WaitForDealCompletion waits for the deal to be slashed or to expire.
func WaitForDealCompletion(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	expiredCb := func(err error) {
		if err != nil {
			_ = ctx.Trigger(storagemarket.ClientEventDealCompletionFailed, xerrors.Errorf("deal expiration err: %w", err))
			return
		}
		_ = ctx.Trigger(storagemarket.ClientEventDealExpired)
	}
	slashedCb := func(slashEpoch abi.ChainEpoch, err error) {
		if err != nil {
			_ = ctx.Trigger(storagemarket.ClientEventDealCompletionFailed, xerrors.Errorf("deal slashing err: %w", err))
			return
		}
		_ = ctx.Trigger(storagemarket.ClientEventDealSlashed, slashEpoch)
	}

	if err := environment.Node().OnDealExpiredOrSlashed(ctx.Context(), deal.DealID, expiredCb, slashedCb); err != nil {
		return ctx.Trigger(storagemarket.ClientEventDealCompletionFailed, err)
	}
	return nil
}

// FailDeal releases any reserved funds before the deal's terminal
// transition to Error.
func FailDeal(ctx fsm.Context, environment ClientDealEnvironment, deal storagemarket.ClientDeal) error {
	log.Warnf("deal %s failed: %s", deal.ProposalCID, deal.Message)

	environment.UntagPeer(deal.Miner, deal.ProposalCID.String())

	if !deal.FundsReserved.Nil() && !deal.FundsReserved.IsZero() {
		if err := environment.Node().ReleaseFunds(ctx.Context(), deal.Proposal.Client, deal.FundsReserved); err != nil {
			log.Warnf("failed to release funds: %s", err)
		} else {
			_ = ctx.Trigger(storagemarket.ClientEventFundsReleased, deal.FundsReserved)
		}
	}

	return ctx.Trigger(storagemarket.ClientEventFailed)
}
