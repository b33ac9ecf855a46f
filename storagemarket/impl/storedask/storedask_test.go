package storedask_test

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-datastore"
	dss "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/storedask"
)

type fakeNode struct {
	height abi.ChainEpoch
	worker address.Address
}

func (f *fakeNode) GetChainHead(ctx context.Context) (storagemarket.TipSetToken, abi.ChainEpoch, error) {
	return storagemarket.TipSetToken("ts"), f.height, nil
}

func (f *fakeNode) GetMinerWorkerAddress(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (address.Address, error) {
	return f.worker, nil
}

func (f *fakeNode) SignBytes(ctx context.Context, signer address.Address, b []byte) (*crypto.Signature, error) {
	return &crypto.Signature{Type: crypto.SigTypeBLS, Data: []byte("sig")}, nil
}

var _ storedask.AskNode = (*fakeNode)(nil)

func TestNewStoredAskSetsDefault(t *testing.T) {
	ds := dss.MutexWrap(datastore.NewMapDatastore())
	miner, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	node := &fakeNode{height: 100, worker: miner}
	sa, err := storedask.NewStoredAsk(ds, datastore.NewKey("/ask"), node, miner)
	require.NoError(t, err)

	ask := sa.GetAsk(miner)
	require.NotNil(t, ask)
	require.Equal(t, storedask.DefaultPrice, ask.Ask.Price)
	require.Equal(t, uint64(0), ask.Ask.SeqNo)
}

func TestSetAskIncrementsSeqNo(t *testing.T) {
	ds := dss.MutexWrap(datastore.NewMapDatastore())
	miner, err := address.NewIDAddress(1000)
	require.NoError(t, err)

	node := &fakeNode{height: 100, worker: miner}
	sa, err := storedask.NewStoredAsk(ds, datastore.NewKey("/ask"), node, miner)
	require.NoError(t, err)

	require.NoError(t, sa.SetAsk(storedask.DefaultPrice, storedask.DefaultVerifiedPrice, storedask.DefaultDuration))
	ask := sa.GetAsk(miner)
	require.Equal(t, uint64(1), ask.Ask.SeqNo)
	require.Equal(t, storedask.DefaultPrice, ask.Ask.Price)
}
