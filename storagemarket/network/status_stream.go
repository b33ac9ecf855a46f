package network

import (
	"bufio"

	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

type dealStatusStream struct {
	p        peer.ID
	rw       network.MuxedStream
	buffered *bufio.Reader
}

var _ DealStatusStream = (*dealStatusStream)(nil)

// NewDealStatusStream wraps a raw muxed stream as a DealStatusStream.
func NewDealStatusStream(p peer.ID, rw network.MuxedStream, buffered *bufio.Reader) DealStatusStream {
	return &dealStatusStream{p: p, rw: rw, buffered: buffered}
}

func (d *dealStatusStream) ReadDealStatusRequest() (DealStatusRequest, error) {
	var dr DealStatusRequest
	if err := cborutil.ReadCborRPC(d.buffered, &dr); err != nil {
		log.Warn(err)
		return DealStatusRequest{}, err
	}
	return dr, nil
}

func (d *dealStatusStream) WriteDealStatusRequest(dr DealStatusRequest) error {
	return cborutil.WriteCborRPC(d.rw, &dr)
}

func (d *dealStatusStream) ReadDealStatusResponse() (DealStatusResponse, []byte, error) {
	var dr DealStatusResponse
	if err := cborutil.ReadCborRPC(d.buffered, &dr); err != nil {
		return DealStatusResponse{}, nil, err
	}
	origBytes, err := cborutil.Dump(&dr.DealState)
	if err != nil {
		return DealStatusResponse{}, nil, err
	}
	return dr, origBytes, nil
}

func (d *dealStatusStream) WriteDealStatusResponse(dr DealStatusResponse, _ ResigningFunc) error {
	return cborutil.WriteCborRPC(d.rw, &dr)
}

func (d *dealStatusStream) Close() error {
	return d.rw.Close()
}
