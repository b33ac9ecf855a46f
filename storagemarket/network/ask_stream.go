package network

import (
	"bufio"

	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

type askStream struct {
	p        peer.ID
	rw       network.MuxedStream
	buffered *bufio.Reader
}

var _ StorageAskStream = (*askStream)(nil)

// NewAskStream wraps a raw muxed stream as a StorageAskStream. Used by the
// libp2p network binding for both outbound dials and inbound handlers.
func NewAskStream(p peer.ID, rw network.MuxedStream, buffered *bufio.Reader) StorageAskStream {
	return &askStream{p: p, rw: rw, buffered: buffered}
}

func (as *askStream) ReadAskRequest() (AskRequest, error) {
	var a AskRequest
	if err := cborutil.ReadCborRPC(as.buffered, &a); err != nil {
		log.Warn(err)
		return AskRequest{}, err
	}
	return a, nil
}

func (as *askStream) WriteAskRequest(q AskRequest) error {
	return cborutil.WriteCborRPC(as.rw, &q)
}

func (as *askStream) ReadAskResponse() (AskResponse, []byte, error) {
	var resp AskResponse
	if err := cborutil.ReadCborRPC(as.buffered, &resp); err != nil {
		log.Warn(err)
		return AskResponse{}, nil, err
	}
	origBytes, err := cborutil.Dump(resp.Ask.Ask)
	if err != nil {
		log.Warn(err)
		return AskResponse{}, nil, err
	}
	return resp, origBytes, nil
}

func (as *askStream) WriteAskResponse(qr AskResponse, _ ResigningFunc) error {
	return cborutil.WriteCborRPC(as.rw, &qr)
}

func (as *askStream) Close() error {
	return as.rw.Close()
}
