package stores

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/storagemarketcore/stores/storiface"
)

var bigFsStat = storiface.FsStat{Capacity: 1 << 40, Available: 1 << 40}

func newTestStorage(id storiface.ID) storiface.StorageInfo {
	return storiface.StorageInfo{ID: id, CanSeal: true, CanStore: true}
}

func TestIndexFindSimple(t *testing.T) {
	ctx := context.Background()
	i := NewIndex()

	require.NoError(t, i.StorageAttach(ctx, newTestStorage("s1"), bigFsStat))
	require.NoError(t, i.StorageAttach(ctx, newTestStorage("s2"), bigFsStat))

	sid := abi.SectorID{Miner: 12, Number: 34}

	si, err := i.StorageFindSector(ctx, sid, storiface.FTSealed, false)
	require.NoError(t, err)
	require.Len(t, si, 0)

	require.NoError(t, i.StorageDeclareSector(ctx, "s1", sid, storiface.FTSealed))

	si, err = i.StorageFindSector(ctx, sid, storiface.FTSealed, false)
	require.NoError(t, err)
	require.Len(t, si, 1)
	require.Equal(t, storiface.ID("s1"), si[0].ID)
}

func TestIndexDuplicateAttach(t *testing.T) {
	ctx := context.Background()
	i := NewIndex()

	require.NoError(t, i.StorageAttach(ctx, newTestStorage("s1"), bigFsStat))
	err := i.StorageAttach(ctx, newTestStorage("s1"), bigFsStat)
	require.Error(t, err)
}

func TestIndexBestAllocFiltersByCanSeal(t *testing.T) {
	ctx := context.Background()
	i := NewIndex()

	sealOnly := newTestStorage("s1")
	sealOnly.CanStore = false
	require.NoError(t, i.StorageAttach(ctx, sealOnly, bigFsStat))

	storeOnly := newTestStorage("s2")
	storeOnly.CanSeal = false
	require.NoError(t, i.StorageAttach(ctx, storeOnly, bigFsStat))

	sealCandidates, err := i.StorageBestAlloc(ctx, storiface.FTUnsealed, abi.RegisteredSealProof_StackedDrg2KiBV1, true)
	require.NoError(t, err)
	require.Len(t, sealCandidates, 1)
	require.Equal(t, storiface.ID("s1"), sealCandidates[0].ID)

	storeCandidates, err := i.StorageBestAlloc(ctx, storiface.FTUnsealed, abi.RegisteredSealProof_StackedDrg2KiBV1, false)
	require.NoError(t, err)
	require.Len(t, storeCandidates, 1)
	require.Equal(t, storiface.ID("s2"), storeCandidates[0].ID)
}
