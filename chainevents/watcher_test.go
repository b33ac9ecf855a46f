package chainevents

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-address"
	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
)

type fakeHeadChangeSource struct {
	ch chan []*HeadChange
}

func newFakeHeadChangeSource() *fakeHeadChangeSource {
	return &fakeHeadChangeSource{ch: make(chan []*HeadChange, 8)}
}

func (f *fakeHeadChangeSource) ChainNotify(ctx context.Context) (<-chan []*HeadChange, error) {
	return f.ch, nil
}

func (f *fakeHeadChangeSource) push(hc ...*HeadChange) {
	f.ch <- hc
}

func mustDump(t *testing.T, v interface{}) []byte {
	b, err := cborutil.Dump(v)
	require.NoError(t, err)
	return b
}

func TestSectorCommittedWatcherResolvesAfterPreAndProveCommit(t *testing.T) {
	provider, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	src := newFakeHeadChangeSource()
	w := NewSectorCommittedWatcher(src)
	require.NoError(t, w.Run(context.Background()))
	defer w.Stop()

	fut := w.OnDealSectorCommitted(provider, abi.DealID(1))

	pre := SectorPreCommitInfo{
		SealedCID:    cid.Undef,
		SectorNumber: abi.SectorNumber(13),
		DealIDs:      []abi.DealID{1},
	}
	src.push(&HeadChange{Type: HCApply, Val: &TipSet{
		Height: 1,
		Messages: []*Message{
			{To: provider, Method: MethodPreCommitSector, Params: mustDump(t, &pre)},
		},
	}})

	select {
	case <-fut.Done():
		t.Fatal("future resolved before prove-commit")
	case <-time.After(20 * time.Millisecond):
	}

	prove := ProveCommitSectorParams{SectorNumber: abi.SectorNumber(13)}
	src.push(&HeadChange{Type: HCApply, Val: &TipSet{
		Height: 2,
		Messages: []*Message{
			{To: provider, Method: MethodProveCommitSector, Params: mustDump(t, &prove)},
		},
	}})

	select {
	case <-fut.Done():
		require.NoError(t, fut.Err())
	case <-time.After(time.Second):
		t.Fatal("future never resolved")
	}
}

func TestSectorCommittedWatcherIgnoresProveCommitWithoutPreCommit(t *testing.T) {
	provider, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	src := newFakeHeadChangeSource()
	w := NewSectorCommittedWatcher(src)
	require.NoError(t, w.Run(context.Background()))
	defer w.Stop()

	fut := w.OnDealSectorCommitted(provider, abi.DealID(1))

	prove := ProveCommitSectorParams{SectorNumber: abi.SectorNumber(13)}
	src.push(&HeadChange{Type: HCApply, Val: &TipSet{
		Height: 1,
		Messages: []*Message{
			{To: provider, Method: MethodProveCommitSector, Params: mustDump(t, &prove)},
		},
	}})

	select {
	case <-fut.Done():
		t.Fatal("future resolved without a preceding pre-commit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSectorCommittedWatcherStopCancelsOutstandingFutures(t *testing.T) {
	provider, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	src := newFakeHeadChangeSource()
	w := NewSectorCommittedWatcher(src)
	require.NoError(t, w.Run(context.Background()))

	fut := w.OnDealSectorCommitted(provider, abi.DealID(1))
	w.Stop()

	select {
	case <-fut.Done():
		require.Error(t, fut.Err())
	case <-time.After(time.Second):
		t.Fatal("future was not resolved on stop")
	}
}
