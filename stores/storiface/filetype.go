package storiface

import (
	"fmt"
	"regexp"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"
)

// SectorFileType is a bitmask representing a set of sector file types.
type SectorFileType int

const (
	FTUnsealed SectorFileType = 1 << iota
	FTSealed
	FTCache

	FileTypes = iota
)

// PathTypes iterates over every bit a SectorFileType bitmask can carry.
var PathTypes = []SectorFileType{FTUnsealed, FTSealed, FTCache}

const FTNone SectorFileType = 0

// FSOverheadDen is the fixed-point denominator FSOverheadSeal's entries are
// expressed against: an entry of FSOverheadDen means "one sector size".
const FSOverheadDen = 10

// FSOverheadSeal estimates, per file type, how many multiples (in tenths of
// a sector size) of the sealed sector size a staged file of that type costs
// in free space, grounded on lotus's storiface.FSOverheadSeal. FTCache holds
// the unsealed proof layers and runs to many sector sizes; this core never
// writes cache files itself, but the entry is kept so SealSpaceUse doesn't
// silently under-reserve if a caller ever allocates one.
var FSOverheadSeal = map[SectorFileType]int{
	FTUnsealed: FSOverheadDen,
	FTSealed:   FSOverheadDen,
	FTCache:    141,
}

// SealSpaceUse reports the bytes of free space allocating every file type
// set in t would cost against a sector of the given size.
func (t SectorFileType) SealSpaceUse(ssize abi.SectorSize) (uint64, error) {
	var need uint64
	for _, pathType := range PathTypes {
		if !t.Has(pathType) {
			continue
		}
		oh, ok := FSOverheadSeal[pathType]
		if !ok {
			return 0, xerrors.Errorf("no seal overhead info for %s", pathType)
		}
		need += uint64(oh) * uint64(ssize) / FSOverheadDen
	}
	if need == 0 {
		return 0, xerrors.New("allocate mask is empty")
	}
	return need, nil
}

func (t SectorFileType) String() string {
	switch t {
	case FTUnsealed:
		return "unsealed"
	case FTSealed:
		return "sealed"
	case FTCache:
		return "cache"
	default:
		return fmt.Sprintf("<unknown %d>", t)
	}
}

// Has reports whether the bitmask contains singleType.
func (t SectorFileType) Has(singleType SectorFileType) bool {
	return t&singleType == singleType
}

// SubsetOf reports whether every bit set in t is also set in other.
func (t SectorFileType) SubsetOf(other SectorFileType) bool {
	return t|other == other
}

// All decomposes the bitmask into a per-type boolean array.
func (t SectorFileType) All() [FileTypes]bool {
	var out [FileTypes]bool
	for i := range out {
		out[i] = t&(1<<i) > 0
	}
	return out
}

// SectorPaths carries the storage-ID or filesystem-path string for each
// file type of a single sector, keyed by the same bit positions as
// SectorFileType.
type SectorPaths struct {
	ID abi.SectorID

	Unsealed string
	Sealed   string
	Cache    string
}

// PathByType returns the path/storage-ID recorded for fileType.
func PathByType(sps SectorPaths, fileType SectorFileType) string {
	switch fileType {
	case FTUnsealed:
		return sps.Unsealed
	case FTSealed:
		return sps.Sealed
	case FTCache:
		return sps.Cache
	}
	panic("requested unknown path type")
}

// SetPathByType records the path/storage-ID for fileType.
func SetPathByType(sps *SectorPaths, fileType SectorFileType, p string) {
	switch fileType {
	case FTUnsealed:
		sps.Unsealed = p
	case FTSealed:
		sps.Sealed = p
	case FTCache:
		sps.Cache = p
	}
}

var sectorNameRe = regexp.MustCompile(`^s-t0([0-9]+)-([0-9]+)$`)

// SectorName renders a sector ID into the on-disk filename the local store
// scans for: s-t0<miner>-<sector>.
func SectorName(sid abi.SectorID) string {
	return fmt.Sprintf("s-t0%d-%d", sid.Miner, sid.Number)
}

// ParseSectorName extracts the sector ID from an on-disk filename, the
// inverse of SectorName. A name that doesn't match the expected pattern
// returns an "invalid sector name" error so callers can skip it rather
// than misclassify it.
func ParseSectorName(baseName string) (abi.SectorID, error) {
	m := sectorNameRe.FindStringSubmatch(baseName)
	if m == nil {
		return abi.SectorID{}, xerrors.Errorf("invalid sector name %q", baseName)
	}

	var mid uint64
	var n uint64
	if _, err := fmt.Sscanf(m[1], "%d", &mid); err != nil {
		return abi.SectorID{}, xerrors.Errorf("invalid sector name %q: %w", baseName, err)
	}
	if _, err := fmt.Sscanf(m[2], "%d", &n); err != nil {
		return abi.SectorID{}, xerrors.Errorf("invalid sector name %q: %w", baseName, err)
	}

	return abi.SectorID{
		Miner:  abi.ActorID(mid),
		Number: abi.SectorNumber(n),
	}, nil
}
