package storagemarket

import (
	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/ipfs/go-cid"
)

// GetProposalCid derives the deterministic ProposalCID of a client deal
// proposal: the CID of its canonical CBOR encoding, exactly as
// cborutil.AsIpld(proposal).Cid() would produce. This is the stable primary
// key for the deal on both sides.
func GetProposalCid(proposal *ClientDealProposal) (cid.Cid, error) {
	nd, err := cborutil.AsIpld(proposal)
	if err != nil {
		return cid.Undef, &DealError{Kind: ErrEncodeError, Msg: err.Error()}
	}
	return nd.Cid(), nil
}

// GetAskCid derives the CID an ask would be addressed by if it needed one;
// the ask is only ever looked up by a well-known datastore key (§4.2), and
// nothing in this module calls it.
func GetAskCid(ask *StorageAsk) (cid.Cid, error) {
	nd, err := cborutil.AsIpld(ask)
	if err != nil {
		return cid.Undef, &DealError{Kind: ErrEncodeError, Msg: err.Error()}
	}
	return nd.Cid(), nil
}
