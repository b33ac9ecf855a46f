package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	smkt "github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/stores/storiface"
)

var log = logging.Logger("stores")

// SectorIndex is the in-memory registry of attached storages and the
// sector files they hold, rebuilt from on-disk metadata at process start
// (spec.md §4.5).
type SectorIndex interface {
	StorageAttach(ctx context.Context, info storiface.StorageInfo, stat storiface.FsStat) error
	StorageDeclareSector(ctx context.Context, storageID storiface.ID, s abi.SectorID, ft storiface.SectorFileType) error
	StorageDropSector(ctx context.Context, storageID storiface.ID, s abi.SectorID, ft storiface.SectorFileType) error
	StorageFindSector(ctx context.Context, s abi.SectorID, ft storiface.SectorFileType, allowFetch bool) ([]storiface.StorageInfo, error)
	StorageBestAlloc(ctx context.Context, allocate storiface.SectorFileType, spt abi.RegisteredSealProof, canSeal bool) ([]storiface.StorageInfo, error)
	StorageInfo(ctx context.Context, id storiface.ID) (storiface.StorageInfo, error)
}

type declMeta struct {
	storageID storiface.ID
	ft        storiface.SectorFileType
}

// Index is the default in-memory SectorIndex, guarded by a single
// reader-writer lock per spec.md §4.5/§5 rather than lotus's finer-grained
// per-sector lock table (see DESIGN.md).
type Index struct {
	lk sync.RWMutex

	stores map[storiface.ID]*storageEntry
	// sectors[sectorID][fileType bit] -> set of storage IDs holding it
	sectors map[abi.SectorID]map[storiface.SectorFileType]map[storiface.ID]struct{}
}

type storageEntry struct {
	info storiface.StorageInfo
	stat storiface.FsStat
}

// NewIndex allocates an empty Index.
func NewIndex() *Index {
	return &Index{
		stores:  map[storiface.ID]*storageEntry{},
		sectors: map[abi.SectorID]map[storiface.SectorFileType]map[storiface.ID]struct{}{},
	}
}

func (i *Index) StorageAttach(ctx context.Context, info storiface.StorageInfo, stat storiface.FsStat) error {
	i.lk.Lock()
	defer i.lk.Unlock()

	if _, ok := i.stores[info.ID]; ok {
		return smkt.NewDealError(smkt.ErrDuplicateStorage, "storage %s already attached", info.ID)
	}

	i.stores[info.ID] = &storageEntry{info: info, stat: stat}
	log.Infof("attached storage %s (seal:%t store:%t)", info.ID, info.CanSeal, info.CanStore)
	return nil
}

func (i *Index) StorageDeclareSector(ctx context.Context, storageID storiface.ID, s abi.SectorID, ft storiface.SectorFileType) error {
	i.lk.Lock()
	defer i.lk.Unlock()

	if _, ok := i.stores[storageID]; !ok {
		return smkt.NewDealError(smkt.ErrNotFoundStorage, "storage %s not attached", storageID)
	}

	byType, ok := i.sectors[s]
	if !ok {
		byType = map[storiface.SectorFileType]map[storiface.ID]struct{}{}
		i.sectors[s] = byType
	}

	for _, pt := range storiface.PathTypes {
		if !ft.Has(pt) {
			continue
		}
		set, ok := byType[pt]
		if !ok {
			set = map[storiface.ID]struct{}{}
			byType[pt] = set
		}
		set[storageID] = struct{}{}
	}

	return nil
}

func (i *Index) StorageDropSector(ctx context.Context, storageID storiface.ID, s abi.SectorID, ft storiface.SectorFileType) error {
	i.lk.Lock()
	defer i.lk.Unlock()

	byType, ok := i.sectors[s]
	if !ok {
		return nil
	}

	for _, pt := range storiface.PathTypes {
		if !ft.Has(pt) {
			continue
		}
		if set, ok := byType[pt]; ok {
			delete(set, storageID)
			if len(set) == 0 {
				delete(byType, pt)
			}
		}
	}

	if len(byType) == 0 {
		delete(i.sectors, s)
	}

	return nil
}

func (i *Index) StorageFindSector(ctx context.Context, s abi.SectorID, ft storiface.SectorFileType, allowFetch bool) ([]storiface.StorageInfo, error) {
	i.lk.RLock()
	defer i.lk.RUnlock()

	byType, ok := i.sectors[s]
	if !ok {
		return nil, nil
	}

	seen := map[storiface.ID]struct{}{}
	var out []storiface.StorageInfo
	for _, pt := range storiface.PathTypes {
		if !ft.Has(pt) {
			continue
		}
		for id := range byType[pt] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if e, ok := i.stores[id]; ok {
				out = append(out, e.info)
			}
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Weight > out[b].Weight })
	return out, nil
}

// StorageBestAlloc returns candidate storages for allocate, best weight
// first, filtered by the canSeal/CanStore flag the caller intends to use it
// for and by whether enough free space remains for a sector of spt's size
// (spec.md §4.5).
func (i *Index) StorageBestAlloc(ctx context.Context, allocate storiface.SectorFileType, spt abi.RegisteredSealProof, canSeal bool) ([]storiface.StorageInfo, error) {
	ssize, err := spt.SectorSize()
	if err != nil {
		return nil, xerrors.Errorf("getting sector size for proof type %d: %w", spt, err)
	}

	need, err := allocate.SealSpaceUse(ssize)
	if err != nil {
		return nil, err
	}

	i.lk.RLock()
	defer i.lk.RUnlock()

	var candidates []storiface.StorageInfo
	for _, e := range i.stores {
		if canSeal && !e.info.CanSeal {
			continue
		}
		if !canSeal && !e.info.CanStore {
			continue
		}

		if e.stat.Available < need {
			continue
		}

		candidates = append(candidates, e.info)
	}

	if len(candidates) == 0 {
		return nil, smkt.NewDealError(smkt.ErrNotFoundPath, "no storage can satisfy allocation of %s", allocate)
	}

	sort.Slice(candidates, func(a, b int) bool { return candidates[a].Weight > candidates[b].Weight })
	return candidates, nil
}

func (i *Index) StorageInfo(ctx context.Context, id storiface.ID) (storiface.StorageInfo, error) {
	i.lk.RLock()
	defer i.lk.RUnlock()

	e, ok := i.stores[id]
	if !ok {
		return storiface.StorageInfo{}, smkt.NewDealError(smkt.ErrNotFoundStorage, "storage %s not attached", id)
	}
	return e.info, nil
}
