package providerstates

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/filecoin-project/go-statemachine/fsm"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/providerutils"
	"github.com/filecoin-project/storagemarketcore/storagemarket/network"
	"github.com/filecoin-project/storagemarketcore/stores"
	"github.com/filecoin-project/storagemarketcore/stores/storiface"
)

var log = logging.Logger("providerstates")

// ProviderDealEnvironment are the dependencies a ProviderStateEntryFunc
// needs, scoped to this module's domain: no CARv2/filestore/piecestore/
// dagstore, since retrieval is out of scope and pieces are placed directly
// in a sector-storage local path (stores.Store).
type ProviderDealEnvironment interface {
	Address() address.Address
	Node() storagemarket.StorageProviderNode
	Ask() storagemarket.StorageAsk
	PieceIO() storagemarket.PieceIO
	Store() stores.Store
	Watcher() *chainevents.SectorCommittedWatcher

	SendSignedResponse(ctx context.Context, response *network.Response) error
	Disconnect(proposalCid cid.Cid) error

	// PullData returns a reader over deal's piece bytes for the
	// graphsync-transfer path, fetched through whatever PieceTransfer
	// collaborator the provider was constructed with. Manual-transfer
	// deals never call this.
	PullData(ctx context.Context, deal storagemarket.MinerDeal) (io.Reader, error)

	network.PeerTagger
}

// ProviderStateEntryFunc is the signature for a provider deal state's
// entry action.
type ProviderStateEntryFunc func(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error

// ValidateDealProposal checks a proposal against provider criteria; a
// proposal that passes moves on to DecideOnProposal, which accepts it.
func ValidateDealProposal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	environment.TagPeer(deal.Client, deal.ProposalCID.String())

	tok, curEpoch, err := environment.Node().GetChainHead(ctx.Context())
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("getting chain head: %w", err))
	}

	if err := providerutils.VerifyProposal(ctx.Context(), deal.ClientDealProposal, tok, environment.Node().VerifySignature); err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("verifying client signature: %w", err))
	}

	proposal := deal.Proposal

	if proposal.Provider != environment.Address() {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.New("WRONG_MINER"))
	}

	if !proposal.PieceCID.Defined() {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.New("proposal PieceCID undefined"))
	}

	if proposal.EndEpoch <= proposal.StartEpoch {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.New("proposal end before proposal start"))
	}

	if curEpoch > proposal.StartEpoch {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.New("deal start epoch has already elapsed"))
	}

	minPrice := environment.Ask().Price
	if proposal.VerifiedDeal {
		minPrice = environment.Ask().VerifiedPrice
	}
	if proposal.StoragePricePerEpoch.LessThan(minPrice) {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("storage price per epoch below ask: %s < %s", proposal.StoragePricePerEpoch, minPrice))
	}

	if proposal.PieceSize < environment.Ask().MinPieceSize {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("piece size below minimum: %d < %d", proposal.PieceSize, environment.Ask().MinPieceSize))
	}
	if proposal.PieceSize > environment.Ask().MaxPieceSize {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.New("PieceSizeGreaterSectorSize"))
	}

	pcMin, pcMax, err := environment.Node().DealProviderCollateralBounds(ctx.Context(), proposal.PieceSize, proposal.VerifiedDeal)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("getting collateral bounds: %w", err))
	}
	if proposal.ProviderCollateral.LessThan(pcMin) || proposal.ProviderCollateral.GreaterThan(pcMax) {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("provider collateral out of bounds: %s not in [%s, %s]", proposal.ProviderCollateral, pcMin, pcMax))
	}

	clientBalance, err := environment.Node().GetBalance(ctx.Context(), proposal.Client, tok)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("getting client market balance: %w", err))
	}
	if clientBalance.Available.LessThan(proposal.TotalStorageFee()) {
		return ctx.Trigger(storagemarket.ProviderEventDealRejected, xerrors.Errorf("client available balance too small: %s < %s", clientBalance.Available, proposal.TotalStorageFee()))
	}

	return ctx.Trigger(storagemarket.ProviderEventDealDeciding)
}

// DecideOnProposal sends the provider's acceptance back to the client.
// Custom operator decision logic (go-fil-markets' RunCustomDecisionLogic)
// is out of scope: spec.md's Non-goals exclude speculative deal matching,
// so every proposal that survives ValidateDealProposal is accepted.
func DecideOnProposal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	err := environment.SendSignedResponse(ctx.Context(), &network.Response{
		State:    storagemarket.StorageDealProposalAccepted,
		Proposal: deal.ProposalCID,
	})
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventSendResponseFailed, err)
	}

	return ctx.Trigger(storagemarket.ProviderEventDealAccepted)
}

// RequestOrInitiateTransfer branches on the deal's transfer type: manual
// transfers park in WaitingForData until ImportDataForDeal is called out
// of band; graphsync transfers move straight into Transferring.
func RequestOrInitiateTransfer(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	if deal.Ref != nil && deal.Ref.TransferType == storagemarket.TTGraphsync {
		return ctx.Trigger(storagemarket.ProviderEventTransferInitiated)
	}
	return ctx.Trigger(storagemarket.ProviderEventDataRequested)
}

// AwaitTransfer pulls piece bytes through environment.PullData (the
// PieceTransfer collaborator, not the deal stream) and places them in an
// allocated unsealed path via the local store.
func AwaitTransfer(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	r, err := environment.PullData(ctx.Context(), deal)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDataTransferFailed, err)
	}

	path, err := stagePieceData(ctx.Context(), environment, deal, r)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDataTransferFailed, err)
	}

	return ctx.Trigger(storagemarket.ProviderEventDataTransferCompleted, path)
}

// stagePieceData allocates an unsealed path keyed by the deal's proposal
// (the sector this piece will eventually occupy is not known until the
// sealing subsystem accepts it, which this core does not implement) and
// copies r into it.
func stagePieceData(ctx context.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal, r io.Reader) (string, error) {
	proofType, err := environment.Node().GetProofType(ctx, deal.Proposal.Provider, nil)
	if err != nil {
		return "", xerrors.Errorf("getting proof type: %w", err)
	}

	sector := storiface.SectorRef{
		ID:        proposalSectorID(deal.ProposalCID),
		ProofType: proofType,
	}

	paths, _, done, err := environment.Store().AcquireSector(ctx, sector, storiface.FTNone, storiface.FTUnsealed, true)
	if err != nil {
		return "", xerrors.Errorf("allocating unsealed path: %w", err)
	}
	defer done()

	f, err := os.Create(paths.Unsealed)
	if err != nil {
		return "", xerrors.Errorf("creating piece file %s: %w", paths.Unsealed, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", xerrors.Errorf("writing piece data: %w", err)
	}

	return paths.Unsealed, nil
}

// proposalSectorID derives a stable placeholder sector ID from a deal's
// proposal CID so its staged piece can be tracked by the local store ahead
// of the real sector number assignment, which belongs to the sealing
// subsystem this core only observes through the chain-event watcher.
func proposalSectorID(proposalCid cid.Cid) abi.SectorID {
	h := proposalCid.Hash()
	var n uint64
	for i := 0; i < len(h) && i < 8; i++ {
		n = n<<8 | uint64(h[i])
	}
	return abi.SectorID{Miner: 0, Number: abi.SectorNumber(n)}
}

// ImportDataForDeal is the public entry point for manual-transfer deals:
// the provider's host calls this once it has the client's bytes in hand.
// It is not a ProviderStateEntryFunc; provider.go's ImportDataForDeal calls
// it directly and then triggers ProviderEventDataTransferCompleted itself.
func ImportDataForDeal(ctx context.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal, data io.Reader) (string, error) {
	return stagePieceData(ctx, environment, deal, data)
}

// VerifyData computes the piece commitment over the bytes received for
// this deal and checks it against the negotiated PieceCID.
func VerifyData(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	f, err := os.Open(deal.PiecePath)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDataVerificationFailed, xerrors.Errorf("opening piece: %w", err))
	}
	defer f.Close()

	proofType, err := environment.Node().GetProofType(ctx.Context(), deal.Proposal.Provider, nil)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDataVerificationFailed, xerrors.Errorf("getting proof type: %w", err))
	}

	pieceCid, _, err := environment.PieceIO().GeneratePieceCommitment(proofType, f, deal.Proposal.PieceSize.Unpadded())
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDataVerificationFailed, xerrors.Errorf("generating piece commitment: %w", err))
	}

	if pieceCid != deal.Proposal.PieceCID {
		return ctx.Trigger(storagemarket.ProviderEventDataVerificationFailed, xerrors.New("PieceCidDoesNotMatch"))
	}

	return ctx.Trigger(storagemarket.ProviderEventVerifiedData)
}

// ReserveProviderFunds adds provider collateral for this deal, if needed.
func ReserveProviderFunds(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	node := environment.Node()

	tok, _, err := node.GetChainHead(ctx.Context())
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventNodeErrored, xerrors.Errorf("acquiring chain head: %w", err))
	}

	waddr, err := node.GetMinerWorkerAddress(ctx.Context(), deal.Proposal.Provider, tok)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventNodeErrored, xerrors.Errorf("looking up miner worker: %w", err))
	}

	mcid, err := node.ReserveFunds(ctx.Context(), waddr, deal.Proposal.Provider, deal.Proposal.ProviderCollateral)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventTrackFundsFailed, err)
	}

	_ = ctx.Trigger(storagemarket.ProviderEventFundsReserved, deal.Proposal.ProviderCollateral)

	if mcid == cid.Undef {
		return ctx.Trigger(storagemarket.ProviderEventFunded)
	}
	return ctx.Trigger(storagemarket.ProviderEventFundingInitiated, mcid)
}

// WaitForProviderFunding waits for the add-funds message to land on chain.
func WaitForProviderFunding(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	return environment.Node().WaitForMessage(ctx.Context(), *deal.AddFundsCid, func(code exitcode.ExitCode, _ []byte, _ cid.Cid, err error) error {
		if err != nil {
			return ctx.Trigger(storagemarket.ProviderEventNodeErrored, xerrors.Errorf("AddFunds errored: %w", err))
		}
		if code != exitcode.Ok {
			return ctx.Trigger(storagemarket.ProviderEventNodeErrored, xerrors.Errorf("AddFunds exit code: %s", code))
		}
		return ctx.Trigger(storagemarket.ProviderEventFunded)
	})
}

// PublishDeal submits a PublishStorageDeals message for this deal.
func PublishDeal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	mcid, err := environment.Node().PublishDeals(ctx.Context(), deal)
	if err != nil {
		if strings.Contains(err.Error(), "not enough funds") {
			log.Warnf("publishing deal failed due to lack of funds: %s", err)
			return nil
		}
		return ctx.Trigger(storagemarket.ProviderEventNodeErrored, xerrors.Errorf("publishing deal: %w", err))
	}
	return ctx.Trigger(storagemarket.ProviderEventDealPublishInitiated, mcid)
}

// WaitForPublish waits for the publish message's receipt and records the
// deal's assigned DealID.
func WaitForPublish(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	if deal.PublishCid == nil {
		return ctx.Trigger(storagemarket.ProviderEventDealPublishError, xerrors.New("no publish message recorded"))
	}

	res, err := environment.Node().WaitForPublishDeals(ctx.Context(), *deal.PublishCid, deal.Proposal)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealPublishError, xerrors.Errorf("waiting for publish: %w", err))
	}

	releaseReservedFunds(ctx, environment, deal)

	return ctx.Trigger(storagemarket.ProviderEventDealPublished, res.DealID, res.FinalCid)
}

// HandoffDeal opens the piece already staged at deal.PiecePath and hands it
// to the sealing subsystem by calling OnDealComplete.
func HandoffDeal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	if deal.PiecePath == "" {
		return ctx.Trigger(storagemarket.ProviderEventDealHandoffFailed, xerrors.New("no piece data recorded for deal"))
	}

	f, err := os.Open(deal.PiecePath)
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealHandoffFailed, xerrors.Errorf("opening piece at %s: %w", deal.PiecePath, err))
	}
	defer f.Close()

	if err := environment.Node().OnDealComplete(ctx.Context(), deal, deal.Proposal.PieceSize.Unpadded(), f); err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealHandoffFailed, xerrors.Errorf("handing off to sealing subsystem: %w", err))
	}

	return ctx.Trigger(storagemarket.ProviderEventDealHandedOff)
}

// VerifyDealActivated watches for this deal's sector to be pre-committed
// and then proven, merging lotus's separate AwaitingPreCommit/Sealing
// states into this module's single Sealing state (spec.md §4.4's two-table
// watcher already serializes pre-commit ahead of prove-commit).
func VerifyDealActivated(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	future := environment.Watcher().OnDealSectorCommitted(deal.Proposal.Provider, deal.DealID)

	go func() {
		select {
		case <-future.Done():
			if err := future.Err(); err != nil {
				_ = ctx.Trigger(storagemarket.ProviderEventDealActivationFailed, err)
				return
			}
			_ = ctx.Trigger(storagemarket.ProviderEventDealActivated)
		case <-ctx.Context().Done():
		}
	}()

	return nil
}

// CleanupDeal has no post-activation bookkeeping to do and immediately
// triggers ProviderEventFinalized.
func CleanupDeal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	return ctx.Trigger(storagemarket.ProviderEventFinalized)
}

// WaitForDealCompletion waits for the deal to be slashed or to expire.
func WaitForDealCompletion(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	environment.UntagPeer(deal.Client, deal.ProposalCID.String())

	expiredCb := func(err error) {
		if err != nil {
			_ = ctx.Trigger(storagemarket.ProviderEventDealCompletionFailed, xerrors.Errorf("deal expiration err: %w", err))
			return
		}
		_ = ctx.Trigger(storagemarket.ProviderEventDealExpired)
	}
	slashedCb := func(slashEpoch abi.ChainEpoch, err error) {
		if err != nil {
			_ = ctx.Trigger(storagemarket.ProviderEventDealCompletionFailed, xerrors.Errorf("deal slashing err: %w", err))
			return
		}
		_ = ctx.Trigger(storagemarket.ProviderEventDealSlashed, slashEpoch)
	}

	if err := environment.Node().OnDealExpiredOrSlashed(ctx.Context(), deal.DealID, expiredCb, slashedCb); err != nil {
		return ctx.Trigger(storagemarket.ProviderEventDealCompletionFailed, err)
	}
	return nil
}

// RejectDeal sends a rejection response before terminating the deal.
func RejectDeal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	err := environment.SendSignedResponse(ctx.Context(), &network.Response{
		State:    storagemarket.StorageDealRejected,
		Message:  deal.Message,
		Proposal: deal.ProposalCID,
	})
	if err != nil {
		return ctx.Trigger(storagemarket.ProviderEventSendResponseFailed, err)
	}

	if err := environment.Disconnect(deal.ProposalCID); err != nil {
		log.Warnf("closing client connection: %s", err)
	}

	return ctx.Trigger(storagemarket.ProviderEventRejectionSent)
}

// FailDeal releases any reserved funds and notifies the peer before the
// deal's terminal transition to Error.
func FailDeal(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) error {
	log.Warnf("deal %s failed: %s", deal.ProposalCID, deal.Message)

	environment.UntagPeer(deal.Client, deal.ProposalCID.String())

	if err := environment.SendSignedResponse(ctx.Context(), &network.Response{
		State:    storagemarket.StorageDealError,
		Message:  deal.Message,
		Proposal: deal.ProposalCID,
	}); err != nil {
		log.Warnf("notifying client of failure: %s", err)
	}
	if err := environment.Disconnect(deal.ProposalCID); err != nil {
		log.Warnf("closing client connection: %s", err)
	}

	releaseReservedFunds(ctx, environment, deal)

	return ctx.Trigger(storagemarket.ProviderEventFailed)
}

func releaseReservedFunds(ctx fsm.Context, environment ProviderDealEnvironment, deal storagemarket.MinerDeal) {
	if deal.FundsReserved.Nil() || deal.FundsReserved.IsZero() {
		return
	}
	if err := environment.Node().ReleaseFunds(ctx.Context(), deal.Proposal.Provider, deal.FundsReserved); err != nil {
		log.Warnf("failed to release funds: %s", err)
		return
	}
	_ = ctx.Trigger(storagemarket.ProviderEventFundsReleased, deal.FundsReserved)
}
