package stores

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"math/bits"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/xerrors"

	smkt "github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/stores/storiface"
)

// MetaFile is the well-known metadata filename at the root of every
// attached storage path (spec.md §6, local-store on-disk layout).
const MetaFile = "sectorstore.json"

// LocalStorageMeta is the JSON contents of <path>/sectorstore.json.
type LocalStorageMeta struct {
	ID       storiface.ID
	Weight   uint64
	CanSeal  bool
	CanStore bool
}

// Store is the operation surface the provider FSM's piece-staging step
// (stagePieceData) and the worker pool use to place and retrieve sector
// files.
type Store interface {
	AcquireSector(ctx context.Context, sector storiface.SectorRef, existing, allocate storiface.SectorFileType, canSeal bool) (paths, storageIDs storiface.SectorPaths, done func(), err error)
	Remove(ctx context.Context, sid abi.SectorID, ft storiface.SectorFileType) error
	MoveStorage(ctx context.Context, sector storiface.SectorRef, types storiface.SectorFileType) error
	OpenPath(ctx context.Context, p string) error
	GetFsStat(ctx context.Context, id storiface.ID) (storiface.FsStat, error)
}

type localPath struct {
	local string
}

// Local is the per-process path registry layered over a SectorIndex,
// grounded on lotus's storage/sectorstorage/stores.Local.
type Local struct {
	index SectorIndex
	urls  []string

	lk    sync.RWMutex
	paths map[storiface.ID]*localPath
}

var _ Store = (*Local)(nil)

// NewLocal builds an empty Local store bound to index. Callers attach
// storage roots with OpenPath.
func NewLocal(index SectorIndex, urls []string) *Local {
	return &Local{
		index: index,
		urls:  urls,
		paths: map[storiface.ID]*localPath{},
	}
}

// OpenPath reads <p>/sectorstore.json, attaches the storage to the index,
// ensures its per-type subdirectories exist, and declares every sector
// file already present. A duplicate storage ID fails with
// ErrDuplicateStorage and leaves state exactly as after the first call.
func (l *Local) OpenPath(ctx context.Context, p string) error {
	l.lk.Lock()
	defer l.lk.Unlock()

	mb, err := ioutil.ReadFile(filepath.Join(p, MetaFile))
	if err != nil {
		return xerrors.Errorf("reading storage metadata for %s: %w", p, err)
	}

	var meta LocalStorageMeta
	if err := json.Unmarshal(mb, &meta); err != nil {
		return xerrors.Errorf("unmarshalling storage metadata for %s: %w", p, err)
	}

	if _, ok := l.paths[meta.ID]; ok {
		return smkt.NewDealError(smkt.ErrDuplicateStorage, "storage %s already opened", meta.ID)
	}

	fst, err := statFs(p)
	if err != nil {
		return err
	}

	if err := l.index.StorageAttach(ctx, storiface.StorageInfo{
		ID:       meta.ID,
		URLs:     l.urls,
		Weight:   meta.Weight,
		CanSeal:  meta.CanSeal,
		CanStore: meta.CanStore,
	}, fst); err != nil {
		return xerrors.Errorf("declaring storage in index: %w", err)
	}

	for _, pt := range storiface.PathTypes {
		sub := filepath.Join(p, pt.String())
		ents, err := ioutil.ReadDir(sub)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(sub, 0755); err != nil {
					return xerrors.Errorf("openPath mkdir %q: %w", sub, err)
				}
				continue
			}
			return xerrors.Errorf("listing %s: %w", sub, err)
		}

		for _, ent := range ents {
			sid, err := storiface.ParseSectorName(ent.Name())
			if err != nil {
				log.Warnf("skipping unrecognized entry %s/%s: %s", sub, ent.Name(), err)
				continue
			}
			if err := l.index.StorageDeclareSector(ctx, meta.ID, sid, pt); err != nil {
				return xerrors.Errorf("declare sector %v(t:%s) -> %s: %w", sid, pt, meta.ID, err)
			}
		}
	}

	l.paths[meta.ID] = &localPath{local: p}
	return nil
}

// AcquireSector resolves paths for every bit set in existing (by looking
// up the index) and allocates fresh paths for every bit set in allocate
// (by consulting StorageBestAlloc, sized for sector.ProofType). existing
// and allocate must be disjoint.
func (l *Local) AcquireSector(ctx context.Context, sector storiface.SectorRef, existing, allocate storiface.SectorFileType, canSeal bool) (storiface.SectorPaths, storiface.SectorPaths, func(), error) {
	if existing&allocate != 0 {
		return storiface.SectorPaths{}, storiface.SectorPaths{}, nil, smkt.NewDealError(smkt.ErrFindAndAllocate, "existing=%s allocate=%s overlap", existing, allocate)
	}

	sid := sector.ID

	l.lk.RLock()

	var out, storageIDs storiface.SectorPaths
	out.ID, storageIDs.ID = sid, sid

	for _, ft := range storiface.PathTypes {
		if !existing.Has(ft) {
			continue
		}

		si, err := l.index.StorageFindSector(ctx, sid, ft, false)
		if err != nil {
			l.lk.RUnlock()
			return storiface.SectorPaths{}, storiface.SectorPaths{}, nil, err
		}

		for _, info := range si {
			lp, ok := l.paths[info.ID]
			if !ok || lp.local == "" {
				continue
			}
			spath := filepath.Join(lp.local, ft.String(), storiface.SectorName(sid))
			storiface.SetPathByType(&out, ft, spath)
			storiface.SetPathByType(&storageIDs, ft, string(info.ID))
			break
		}
	}

	for _, ft := range storiface.PathTypes {
		if !allocate.Has(ft) {
			continue
		}

		best, err := l.index.StorageBestAlloc(ctx, ft, sector.ProofType, canSeal)
		if err != nil {
			l.lk.RUnlock()
			return storiface.SectorPaths{}, storiface.SectorPaths{}, nil, err
		}

		var chosen storiface.StorageInfo
		var found bool
		for _, si := range best {
			lp, ok := l.paths[si.ID]
			if !ok || lp.local == "" {
				continue
			}
			chosen, found = si, true
			break
		}
		if !found {
			l.lk.RUnlock()
			return storiface.SectorPaths{}, storiface.SectorPaths{}, nil, smkt.NewDealError(smkt.ErrNotFoundPath, "no local path can allocate %s", ft)
		}

		lp := l.paths[chosen.ID]
		spath := filepath.Join(lp.local, ft.String(), storiface.SectorName(sid))
		storiface.SetPathByType(&out, ft, spath)
		storiface.SetPathByType(&storageIDs, ft, string(chosen.ID))
	}

	return out, storageIDs, l.lk.RUnlock, nil
}

// Remove drops a single file type from the index and deletes its files on
// every local storage that holds it.
func (l *Local) Remove(ctx context.Context, sid abi.SectorID, ft storiface.SectorFileType) error {
	if bits.OnesCount(uint(ft)) != 1 {
		return smkt.NewDealError(smkt.ErrRemoveSeveralFileTypes, "remove requires exactly one file type, got %s", ft)
	}

	l.lk.Lock()
	defer l.lk.Unlock()

	si, err := l.index.StorageFindSector(ctx, sid, ft, false)
	if err != nil {
		return xerrors.Errorf("finding sector %v(t:%s): %w", sid, ft, err)
	}

	var lastErr error
	for _, info := range si {
		lp, ok := l.paths[info.ID]
		if !ok || lp.local == "" {
			continue
		}

		spath := filepath.Join(lp.local, ft.String(), storiface.SectorName(sid))
		if err := os.RemoveAll(spath); err != nil {
			lastErr = xerrors.Errorf("removing %s: %w", spath, err)
			log.Errorf("%s", lastErr)
			continue
		}

		if err := l.index.StorageDropSector(ctx, info.ID, sid, ft); err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		return smkt.NewDealError(smkt.ErrCannotRemoveSector, "%s", lastErr)
	}
	return nil
}

// MoveStorage relocates every type bit in types that doesn't already live
// on a can_store storage, holding the lock across rename plus index update
// so StorageFindSector never observes a sector present on neither the old
// nor the new path. Destination candidates are sized for sector.ProofType.
func (l *Local) MoveStorage(ctx context.Context, sector storiface.SectorRef, types storiface.SectorFileType) error {
	sid := sector.ID

	l.lk.Lock()
	defer l.lk.Unlock()

	for _, ft := range storiface.PathTypes {
		if !types.Has(ft) {
			continue
		}

		cur, err := l.index.StorageFindSector(ctx, sid, ft, false)
		if err != nil {
			return xerrors.Errorf("finding sector %v(t:%s): %w", sid, ft, err)
		}

		var onStore bool
		var srcStorage storiface.ID
		for _, info := range cur {
			if info.CanStore {
				onStore = true
				break
			}
			srcStorage = info.ID
		}
		if onStore || srcStorage == "" {
			continue
		}

		dest, err := l.index.StorageBestAlloc(ctx, ft, sector.ProofType, false)
		if err != nil {
			return smkt.NewDealError(smkt.ErrCannotMoveSector, "finding can_store destination for %v(t:%s): %s", sid, ft, err)
		}

		var chosen storiface.StorageInfo
		var found bool
		for _, si := range dest {
			if _, ok := l.paths[si.ID]; ok {
				chosen, found = si, true
				break
			}
		}
		if !found {
			return smkt.NewDealError(smkt.ErrCannotMoveSector, "no destination storage for %v(t:%s)", sid, ft)
		}

		srcPath, ok := l.paths[srcStorage]
		if !ok {
			return smkt.NewDealError(smkt.ErrCannotMoveSector, "source storage %s not open", srcStorage)
		}
		dstPath := l.paths[chosen.ID]

		src := filepath.Join(srcPath.local, ft.String(), storiface.SectorName(sid))
		dst := filepath.Join(dstPath.local, ft.String(), storiface.SectorName(sid))

		if err := os.Rename(src, dst); err != nil {
			return smkt.NewDealError(smkt.ErrCannotMoveSector, "rename %s -> %s: %s", src, dst, err)
		}

		if err := l.index.StorageDropSector(ctx, srcStorage, sid, ft); err != nil {
			return err
		}
		if err := l.index.StorageDeclareSector(ctx, chosen.ID, sid, ft); err != nil {
			return err
		}
	}

	return nil
}

func (l *Local) GetFsStat(ctx context.Context, id storiface.ID) (storiface.FsStat, error) {
	l.lk.RLock()
	defer l.lk.RUnlock()

	lp, ok := l.paths[id]
	if !ok {
		return storiface.FsStat{}, smkt.NewDealError(smkt.ErrNotFoundStorage, "storage %s not open", id)
	}
	return statFs(lp.local)
}

func statFs(path string) (storiface.FsStat, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return storiface.FsStat{}, xerrors.Errorf("statfs %s: %w", path, err)
	}

	return storiface.FsStat{
		Capacity:  stat.Blocks * uint64(stat.Bsize),
		Available: stat.Bavail * uint64(stat.Bsize),
		Used:      (stat.Blocks - stat.Bfree) * uint64(stat.Bsize),
	}, nil
}
