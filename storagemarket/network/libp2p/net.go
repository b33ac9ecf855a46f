package libp2p

import (
	"bufio"
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	smnet "github.com/filecoin-project/storagemarketcore/storagemarket/network"
)

// libp2pStorageMarketNetwork implements smnet.StorageMarketNetwork on top of
// a libp2p host, registering the three storage-market protocol IDs and
// dispatching inbound streams to a StorageReceiver set by the orchestrator.
type libp2pStorageMarketNetwork struct {
	host     host.Host
	receiver smnet.StorageReceiver
}

// NewFromLibp2pHost builds a StorageMarketNetwork bound to host.
func NewFromLibp2pHost(h host.Host) smnet.StorageMarketNetwork {
	return &libp2pStorageMarketNetwork{host: h}
}

func (n *libp2pStorageMarketNetwork) NewAskStream(ctx context.Context, id peer.ID) (smnet.StorageAskStream, error) {
	s, err := n.host.NewStream(ctx, id, smnet.AskProtocolID)
	if err != nil {
		return nil, err
	}
	return smnet.NewAskStream(id, s, bufio.NewReader(s)), nil
}

func (n *libp2pStorageMarketNetwork) NewDealStream(ctx context.Context, id peer.ID) (smnet.StorageDealStream, error) {
	s, err := n.host.NewStream(ctx, id, smnet.DealProtocolID)
	if err != nil {
		return nil, err
	}
	n.host.ConnManager().TagPeer(id, "deal-stream", smnet.TagPriority)
	return smnet.NewDealStream(id, s, bufio.NewReader(s)), nil
}

func (n *libp2pStorageMarketNetwork) NewDealStatusStream(ctx context.Context, id peer.ID) (smnet.DealStatusStream, error) {
	s, err := n.host.NewStream(ctx, id, smnet.DealStatusProtocolID)
	if err != nil {
		return nil, err
	}
	return smnet.NewDealStatusStream(id, s, bufio.NewReader(s)), nil
}

func (n *libp2pStorageMarketNetwork) SetDelegate(r smnet.StorageReceiver) error {
	n.receiver = r
	n.host.SetStreamHandler(smnet.AskProtocolID, n.handleNewAskStream)
	n.host.SetStreamHandler(smnet.DealProtocolID, n.handleNewDealStream)
	n.host.SetStreamHandler(smnet.DealStatusProtocolID, n.handleNewDealStatusStream)
	return nil
}

func (n *libp2pStorageMarketNetwork) StopHandlingRequests() error {
	n.host.RemoveStreamHandler(smnet.AskProtocolID)
	n.host.RemoveStreamHandler(smnet.DealProtocolID)
	n.host.RemoveStreamHandler(smnet.DealStatusProtocolID)
	return nil
}

func (n *libp2pStorageMarketNetwork) ID() peer.ID {
	return n.host.ID()
}

func (n *libp2pStorageMarketNetwork) AddAddrs(id peer.ID, addrs []ma.Multiaddr) {
	n.host.Peerstore().AddAddrs(id, addrs, 0)
}

func (n *libp2pStorageMarketNetwork) TagPeer(id peer.ID, tag string) {
	n.host.ConnManager().TagPeer(id, tag, smnet.TagPriority)
}

func (n *libp2pStorageMarketNetwork) UntagPeer(id peer.ID, tag string) {
	n.host.ConnManager().UntagPeer(id, tag)
}

func (n *libp2pStorageMarketNetwork) handleNewAskStream(s network.Stream) {
	if n.receiver == nil {
		s.Reset()
		return
	}
	remote := s.Conn().RemotePeer()
	n.receiver.HandleAskStream(smnet.NewAskStream(remote, s, bufio.NewReader(s)))
}

func (n *libp2pStorageMarketNetwork) handleNewDealStream(s network.Stream) {
	if n.receiver == nil {
		s.Reset()
		return
	}
	remote := s.Conn().RemotePeer()
	n.host.ConnManager().TagPeer(remote, "deal-stream", smnet.TagPriority)
	n.receiver.HandleDealStream(smnet.NewDealStream(remote, s, bufio.NewReader(s)))
}

func (n *libp2pStorageMarketNetwork) handleNewDealStatusStream(s network.Stream) {
	if n.receiver == nil {
		s.Reset()
		return
	}
	remote := s.Conn().RemotePeer()
	n.receiver.HandleDealStatusStream(smnet.NewDealStatusStream(remote, s, bufio.NewReader(s)))
}
