package chainevents

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
)

// Head-change kinds, matching lotus chain/store's HCApply/HCRevert/HCCurrent
// constants on the wire.
const (
	HCRevert  = "revert"
	HCApply   = "apply"
	HCCurrent = "current"
)

// Miner actor method numbers this watcher cares about. The full method
// table lives in the chain client this core treats as an external
// collaborator; only the two methods the watcher matches against are named
// here.
const (
	MethodPreCommitSector   = uint64(6)
	MethodProveCommitSector = uint64(7)
)

// Message is the minimal on-chain message shape the watcher needs to
// inspect: its recipient, method number and raw CBOR params.
type Message struct {
	To     address.Address
	Method uint64
	Params []byte
}

// TipSet is the minimal tipset shape the watcher needs: its height and the
// set of messages carried by its blocks, already flattened and deduplicated
// by the out-of-scope chain client.
type TipSet struct {
	Height   abi.ChainEpoch
	Messages []*Message
}

// HeadChange is a single notification out of the chain client's
// ChainNotify stream.
type HeadChange struct {
	Type string
	Val  *TipSet
}

// SectorPreCommitInfo mirrors the market-actor-visible fields of the
// builtin miner actor's pre-commit parameters.
type SectorPreCommitInfo struct {
	SealedCID    cid.Cid
	SectorNumber abi.SectorNumber
	DealIDs      []abi.DealID
}

// ProveCommitSectorParams mirrors the builtin miner actor's prove-commit
// parameters.
type ProveCommitSectorParams struct {
	SectorNumber abi.SectorNumber
	Proof        []byte
}
