package storagemarket

import "golang.org/x/xerrors"

// Error kinds from spec.md §7. Declared as sentinel errors in the style of
// go-fil-markets' storagemarket.go, so callers can xerrors.Is against a
// stable value regardless of the wrapping message.
var (
	ErrInvalidSignature              = xerrors.New("invalid signature")
	ErrWrongMiner                    = xerrors.New("deal proposal is for a different miner")
	ErrPieceSizeGreaterSectorSize    = xerrors.New("piece size is larger than sector size")
	ErrPieceDataNotSetForManualTransfer = xerrors.New("piece data was not set for manual transfer deal")
	ErrPieceCidDoesNotMatch          = xerrors.New("piece CID does not match proposal")
	ErrAddFundsCallError             = xerrors.New("error calling AddFunds on chain")
	ErrLocalDealNotFound             = xerrors.New("could not find deal")
	ErrInvalidSectorName             = xerrors.New("invalid sector file name")
	ErrDuplicateStorage              = xerrors.New("storage already attached")
	ErrNotFoundStorage               = xerrors.New("storage not found")
	ErrNotFoundPath                  = xerrors.New("could not find path for sector")
	ErrNotFoundSector                = xerrors.New("sector not found in index")
	ErrCannotMoveSector              = xerrors.New("cannot move sector")
	ErrCannotRemoveSector            = xerrors.New("cannot remove sector")
	ErrRemoveSeveralFileTypes        = xerrors.New("remove requires exactly one file type bit")
	ErrFindAndAllocate               = xerrors.New("existing and allocate file type sets overlap")
	ErrInvalidStorageConfig          = xerrors.New("invalid storage configuration")
	ErrNetworkStreamClosed           = xerrors.New("network stream closed")
	ErrDecodeError                   = xerrors.New("failed to decode message")
	ErrEncodeError                   = xerrors.New("failed to encode message")
	ErrChainCallFailed               = xerrors.New("chain call failed")
	ErrAskNotFound                   = xerrors.New("no ask has been set")
)

// DealError wraps one of the sentinel errors above together with a
// human-readable message, assigned to MinerDeal.Message/ClientDeal.Message
// on failure so terminal records remain self-explanatory.
type DealError struct {
	Kind error
	Msg  string
}

func (e *DealError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *DealError) Unwrap() error { return e.Kind }

// NewDealError wraps kind with additional context, matching the
// "deal record reflects the error" requirement of spec.md §8.
func NewDealError(kind error, format string, args ...interface{}) *DealError {
	return &DealError{Kind: kind, Msg: xerrors.Errorf(format, args...).Error()}
}
