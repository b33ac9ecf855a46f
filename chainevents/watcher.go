package chainevents

import (
	"bytes"
	"context"
	"sync"

	"github.com/filecoin-project/go-address"
	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("chainevents")

// HeadChangeSource is the out-of-scope blockchain client's contract for
// this watcher: a stream of head-change batches, delivered in chain order.
type HeadChangeSource interface {
	ChainNotify(ctx context.Context) (<-chan []*HeadChange, error)
}

type dealKey struct {
	provider address.Address
	dealID   abi.DealID
}

// SectorCommittedWatcher turns a HeadChangeSource into per-deal completion
// futures, matching a PreCommitSector to a later ProveCommitSector for the
// same sector without pulling in the full confidence-window events engine.
type SectorCommittedWatcher struct {
	src HeadChangeSource

	lk               sync.Mutex
	pendingPrecommit map[dealKey]*Future
	precommitted     map[dealKey]abi.SectorNumber

	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewSectorCommittedWatcher builds a watcher over src. Call Run to start
// consuming head changes.
func NewSectorCommittedWatcher(src HeadChangeSource) *SectorCommittedWatcher {
	return &SectorCommittedWatcher{
		src:              src,
		pendingPrecommit: map[dealKey]*Future{},
		precommitted:     map[dealKey]abi.SectorNumber{},
	}
}

// OnDealSectorCommitted registers interest in a deal's sector commitment
// and returns the future that resolves once a ProveCommitSector has landed
// for the sector that previously pre-committed dealID.
func (w *SectorCommittedWatcher) OnDealSectorCommitted(provider address.Address, dealID abi.DealID) *Future {
	w.lk.Lock()
	defer w.lk.Unlock()

	k := dealKey{provider, dealID}
	if f, ok := w.pendingPrecommit[k]; ok {
		return f
	}
	f := NewFuture()
	w.pendingPrecommit[k] = f
	return f
}

// Run starts the head-change subscription. It returns once the initial
// subscribe call succeeds; processing continues on a background goroutine
// until Stop is called or ctx is cancelled.
func (w *SectorCommittedWatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	notifs, err := w.src.ChainNotify(ctx)
	if err != nil {
		cancel()
		return xerrors.Errorf("subscribing to head changes: %w", err)
	}

	w.cancel = cancel
	w.stopped = make(chan struct{})

	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				w.cancelAll(ctx.Err())
				return
			case changes, ok := <-notifs:
				if !ok {
					w.cancelAll(xerrors.New("chain notify stream closed"))
					return
				}
				for _, hc := range changes {
					w.applyHeadChange(hc)
				}
			}
		}
	}()

	return nil
}

// Stop cancels the subscription and resolves every outstanding future with
// a cancellation error. Non-terminal deals are unaffected; the caller must
// reconcile via a later status query after restarting the watcher.
func (w *SectorCommittedWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.stopped != nil {
		<-w.stopped
	}
}

func (w *SectorCommittedWatcher) cancelAll(err error) {
	w.lk.Lock()
	defer w.lk.Unlock()
	for k, f := range w.pendingPrecommit {
		f.Resolve(xerrors.Errorf("watcher stopped: %w", err))
		delete(w.pendingPrecommit, k)
	}
	for k := range w.precommitted {
		delete(w.precommitted, k)
	}
}

func (w *SectorCommittedWatcher) applyHeadChange(hc *HeadChange) {
	switch hc.Type {
	case HCApply, HCCurrent:
		w.applyTipSet(hc.Val)
	case HCRevert:
		w.revertTipSet(hc.Val)
	default:
		log.Warnf("unknown head change type %q", hc.Type)
	}
}

func (w *SectorCommittedWatcher) applyTipSet(ts *TipSet) {
	if ts == nil {
		return
	}

	w.lk.Lock()
	defer w.lk.Unlock()

	for _, msg := range ts.Messages {
		switch msg.Method {
		case MethodPreCommitSector:
			w.matchPreCommit(msg)
		case MethodProveCommitSector:
			w.matchProveCommit(msg)
		}
	}
}

func (w *SectorCommittedWatcher) matchPreCommit(msg *Message) {
	var params SectorPreCommitInfo
	if err := cborutil.ReadCborRPC(bytes.NewReader(msg.Params), &params); err != nil {
		log.Warnf("decoding PreCommitSector params from %s: %s", msg.To, err)
		return
	}

	for _, dealID := range params.DealIDs {
		k := dealKey{msg.To, dealID}
		if _, ok := w.pendingPrecommit[k]; ok {
			w.precommitted[k] = params.SectorNumber
		}
	}
}

func (w *SectorCommittedWatcher) matchProveCommit(msg *Message) {
	var params ProveCommitSectorParams
	if err := cborutil.ReadCborRPC(bytes.NewReader(msg.Params), &params); err != nil {
		log.Warnf("decoding ProveCommitSector params from %s: %s", msg.To, err)
		return
	}

	for k, sector := range w.precommitted {
		if k.provider != msg.To || sector != params.SectorNumber {
			continue
		}
		if f, ok := w.pendingPrecommit[k]; ok {
			f.Resolve(nil)
			delete(w.pendingPrecommit, k)
		}
		delete(w.precommitted, k)
	}
}

// revertTipSet undoes the precommitted bookkeeping an APPLY of ts recorded.
// Futures already resolved stay resolved; only the precommitted → sector
// link is rolled back so a later prove-commit can't spuriously match a
// sector that was only precommitted on the reverted branch.
func (w *SectorCommittedWatcher) revertTipSet(ts *TipSet) {
	if ts == nil {
		return
	}

	w.lk.Lock()
	defer w.lk.Unlock()

	for _, msg := range ts.Messages {
		if msg.Method != MethodPreCommitSector {
			continue
		}
		var params SectorPreCommitInfo
		if err := cborutil.ReadCborRPC(bytes.NewReader(msg.Params), &params); err != nil {
			log.Warnf("decoding reverted PreCommitSector params from %s: %s", msg.To, err)
			continue
		}
		for _, dealID := range params.DealIDs {
			k := dealKey{msg.To, dealID}
			if sector, ok := w.precommitted[k]; ok && sector == params.SectorNumber {
				delete(w.precommitted, k)
			}
		}
	}
}
