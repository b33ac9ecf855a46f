package stores

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/storagemarketcore/stores/storiface"
)

func writeMeta(t *testing.T, dir string, meta LocalStorageMeta) {
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), b, 0644))
}

func TestAcquireSectorWithoutConflict(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeMeta(t, dir, LocalStorageMeta{ID: "s1", Weight: 10, CanSeal: true, CanStore: true})

	idx := NewIndex()
	st := NewLocal(idx, nil)
	require.NoError(t, st.OpenPath(ctx, dir))

	sid := abi.SectorID{Miner: 1000, Number: 7}
	require.NoError(t, idx.StorageDeclareSector(ctx, "s1", sid, storiface.FTCache))

	sector := storiface.SectorRef{ID: sid, ProofType: abi.RegisteredSealProof_StackedDrg2KiBV1}

	paths, storageIDs, done, err := st.AcquireSector(ctx, sector, storiface.FTCache, storiface.FTUnsealed|storiface.FTSealed, true)
	require.NoError(t, err)
	defer done()

	require.NotEmpty(t, paths.Cache)
	require.NotEmpty(t, paths.Unsealed)
	require.NotEmpty(t, paths.Sealed)
	require.Equal(t, storiface.ID("s1"), storiface.ID(storageIDs.Cache))

	_, _, _, err = st.AcquireSector(ctx, sector, storiface.FTUnsealed, storiface.FTUnsealed, true)
	require.Error(t, err)
}

func TestOpenPathScansExistingSectorFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeMeta(t, dir, LocalStorageMeta{ID: "s1", Weight: 10, CanSeal: true, CanStore: true})

	sid := abi.SectorID{Miner: 1000, Number: 7}
	name := storiface.SectorName(sid)

	for _, sub := range []string{"sealed", "unsealed"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, name), []byte{}, 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cache", name), 0755))

	idx := NewIndex()
	st := NewLocal(idx, nil)
	require.NoError(t, st.OpenPath(ctx, dir))

	for _, ft := range []storiface.SectorFileType{storiface.FTSealed, storiface.FTUnsealed, storiface.FTCache} {
		si, err := idx.StorageFindSector(ctx, sid, ft, false)
		require.NoError(t, err)
		require.Len(t, si, 1)
		require.Equal(t, storiface.ID("s1"), si[0].ID)
	}
}

func TestOpenPathTwiceIsDuplicateStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeMeta(t, dir, LocalStorageMeta{ID: "s1", Weight: 10, CanSeal: true, CanStore: true})

	idx := NewIndex()
	st := NewLocal(idx, nil)
	require.NoError(t, st.OpenPath(ctx, dir))
	err := st.OpenPath(ctx, dir)
	require.Error(t, err)
}

func TestRemoveRejectsMultiBitType(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	st := NewLocal(idx, nil)

	sid := abi.SectorID{Miner: 1000, Number: 7}
	err := st.Remove(ctx, sid, storiface.FTSealed|storiface.FTCache)
	require.Error(t, err)
}
