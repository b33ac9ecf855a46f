package network

import (
	"bufio"

	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// TagPriority is the priority for deal streams -- they should generally be
// preserved above all else while a deal is in flight.
const TagPriority = 100

type dealStream struct {
	p        peer.ID
	rw       network.MuxedStream
	buffered *bufio.Reader
}

var _ StorageDealStream = (*dealStream)(nil)

// NewDealStream wraps a raw muxed stream as a StorageDealStream.
func NewDealStream(p peer.ID, rw network.MuxedStream, buffered *bufio.Reader) StorageDealStream {
	return &dealStream{p: p, rw: rw, buffered: buffered}
}

func (d *dealStream) ReadDealProposal() (Proposal, error) {
	var ds Proposal
	if err := cborutil.ReadCborRPC(d.buffered, &ds); err != nil {
		log.Warn(err)
		return ProposalUndefined, err
	}
	return ds, nil
}

func (d *dealStream) WriteDealProposal(dp Proposal) error {
	return cborutil.WriteCborRPC(d.rw, &dp)
}

func (d *dealStream) ReadDealResponse() (SignedResponse, []byte, error) {
	var dr SignedResponse
	if err := cborutil.ReadCborRPC(d.buffered, &dr); err != nil {
		return SignedResponseUndefined, nil, err
	}
	origBytes, err := cborutil.Dump(&dr.Response)
	if err != nil {
		return SignedResponseUndefined, nil, err
	}
	return dr, origBytes, nil
}

func (d *dealStream) WriteDealResponse(dr SignedResponse, _ ResigningFunc) error {
	return cborutil.WriteCborRPC(d.rw, &dr)
}

func (d *dealStream) Close() error {
	return d.rw.Close()
}

func (d *dealStream) RemotePeer() peer.ID {
	return d.p
}
