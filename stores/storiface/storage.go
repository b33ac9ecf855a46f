package storiface

import "github.com/filecoin-project/go-state-types/abi"

// ID identifies one attached storage path. One ID maps to one filesystem,
// local to this process.
type ID string

// SectorRef names a sector together with the proof type that determines
// its size, grounded on lotus's storiface.SectorRef.
type SectorRef struct {
	ID        abi.SectorID
	ProofType abi.RegisteredSealProof
}

// NoSectorRef is the zero SectorRef, for call sites with nothing to report.
var NoSectorRef = SectorRef{}

// Group names a label storages can be tagged with to scope which other
// storages may fetch from them; unused by the single-process local store
// but carried through StorageInfo so the index's shape matches lotus's.
type Group = string

// StorageInfo is what the index tracks about one attached storage path.
type StorageInfo struct {
	ID       ID
	URLs     []string
	Weight   uint64
	CanSeal  bool
	CanStore bool

	Groups  []Group
	AllowTo []Group
}

// FsStat reports capacity/usage for a local storage path.
type FsStat struct {
	Capacity  uint64
	Available uint64
	Reserved  uint64
	Used      uint64
}
