package storedask

import (
	"bytes"
	"context"
	"sync"

	"github.com/filecoin-project/go-address"
	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

var log = logging.Logger("storedask")

// DefaultPrice is the default price for unverified deals (in attoFil / GiB / Epoch).
var DefaultPrice = abi.NewTokenAmount(500000000)

// DefaultVerifiedPrice is the default price for verified deals (in attoFil / GiB / Epoch).
var DefaultVerifiedPrice = abi.NewTokenAmount(50000000)

// DefaultDuration is the default number of epochs a storage ask is in effect for.
const DefaultDuration = abi.ChainEpoch(1000000)

// DefaultMinPieceSize is the minimum accepted piece size for data.
const DefaultMinPieceSize = abi.PaddedPieceSize(256)

// DefaultMaxPieceSize is the default maximum accepted size for pieces for deals.
const DefaultMaxPieceSize = abi.PaddedPieceSize(1 << 20)

// AskNode is the slice of StorageProviderNode that StoredAsk needs to mint
// and sign a new ask. It is declared narrowly here rather than depending on
// the full storagemarket.StorageProviderNode so that callers (and tests)
// don't have to stub out sealing/publish/collateral methods just to manage
// an ask.
type AskNode interface {
	GetChainHead(ctx context.Context) (storagemarket.TipSetToken, abi.ChainEpoch, error)
	GetMinerWorkerAddress(ctx context.Context, addr address.Address, tok storagemarket.TipSetToken) (address.Address, error)
	SignBytes(ctx context.Context, signer address.Address, b []byte) (*crypto.Signature, error)
}

// StoredAsk implements a persisted SignedStorageAsk that lasts through
// restarts. It also maintains a cache of the current SignedStorageAsk in
// memory. Grounded on go-fil-markets' storedask.StoredAsk.
type StoredAsk struct {
	askLk sync.RWMutex
	ask   *storagemarket.SignedStorageAsk
	ds    datastore.Batching
	dsKey datastore.Key
	spn   AskNode
	actor address.Address
}

// NewStoredAsk returns a new instance of StoredAsk. It initializes a new
// SignedStorageAsk on disk if one is not already set, otherwise loads the
// current SignedStorageAsk from disk.
func NewStoredAsk(ds datastore.Batching, dsKey datastore.Key, spn AskNode, actor address.Address) (*StoredAsk, error) {
	s := &StoredAsk{
		ds:    ds,
		dsKey: dsKey,
		spn:   spn,
		actor: actor,
	}

	if err := s.tryLoadAsk(); err != nil {
		return nil, err
	}

	if s.ask == nil {
		if err := s.SetAsk(DefaultPrice, DefaultVerifiedPrice, DefaultDuration); err != nil {
			return nil, xerrors.Errorf("failed setting a default price: %w", err)
		}
	}
	return s, nil
}

// SetAsk configures the storage miner's ask with the provided prices (for
// unverified and verified deals), duration, and options. Any previously
// existing ask is replaced. If no options override MinPieceSize/
// MaxPieceSize, the previous ask's values are reused when available.
// It also increments the sequence number on the ask.
func (s *StoredAsk) SetAsk(price abi.TokenAmount, verifiedPrice abi.TokenAmount, duration abi.ChainEpoch, options ...storagemarket.StorageAskOption) error {
	s.askLk.Lock()
	defer s.askLk.Unlock()

	var seqno uint64
	minPieceSize := DefaultMinPieceSize
	maxPieceSize := DefaultMaxPieceSize
	if s.ask != nil {
		seqno = s.ask.Ask.SeqNo + 1
		minPieceSize = s.ask.Ask.MinPieceSize
		maxPieceSize = s.ask.Ask.MaxPieceSize
	}

	ctx := context.TODO()
	_, height, err := s.spn.GetChainHead(ctx)
	if err != nil {
		return err
	}

	ask := &storagemarket.StorageAsk{
		Price:         price,
		VerifiedPrice: verifiedPrice,
		Timestamp:     height,
		Expiry:        height + duration,
		Miner:         s.actor,
		SeqNo:         seqno,
		MinPieceSize:  minPieceSize,
		MaxPieceSize:  maxPieceSize,
	}

	for _, option := range options {
		option(ask)
	}

	sig, err := s.sign(ctx, ask)
	if err != nil {
		return err
	}
	return s.saveAsk(&storagemarket.SignedStorageAsk{
		Ask:       ask,
		Signature: sig,
	})
}

func (s *StoredAsk) sign(ctx context.Context, ask *storagemarket.StorageAsk) (*crypto.Signature, error) {
	_, tok, err := s.chainHeadToken(ctx)
	if err != nil {
		return nil, err
	}
	worker, err := s.spn.GetMinerWorkerAddress(ctx, s.actor, tok)
	if err != nil {
		return nil, err
	}
	buf, err := cborutil.Dump(ask)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize ask: %w", err)
	}
	return s.spn.SignBytes(ctx, worker, buf)
}

func (s *StoredAsk) chainHeadToken(ctx context.Context) (abi.ChainEpoch, storagemarket.TipSetToken, error) {
	tok, height, err := s.spn.GetChainHead(ctx)
	return height, tok, err
}

// GetAsk returns the current signed storage ask, or nil if one does not exist.
func (s *StoredAsk) GetAsk(miner address.Address) *storagemarket.SignedStorageAsk {
	s.askLk.RLock()
	defer s.askLk.RUnlock()
	if s.ask == nil || s.ask.Ask.Miner != miner {
		return nil
	}
	ask := *s.ask
	return &ask
}

func (s *StoredAsk) tryLoadAsk() error {
	s.askLk.Lock()
	defer s.askLk.Unlock()

	err := s.loadAsk()
	if err != nil {
		if xerrors.Is(err, datastore.ErrNotFound) {
			log.Warn("no previous ask found, miner will not accept deals until a price is set")
			return nil
		}
		return err
	}
	return nil
}

func (s *StoredAsk) loadAsk() error {
	askb, err := s.ds.Get(context.TODO(), s.dsKey)
	if err != nil {
		return xerrors.Errorf("failed to load most recent ask from disk: %w", err)
	}

	var ssa storagemarket.SignedStorageAsk
	if err := cborutil.ReadCborRPC(bytes.NewReader(askb), &ssa); err != nil {
		return err
	}
	s.ask = &ssa
	return nil
}

func (s *StoredAsk) saveAsk(a *storagemarket.SignedStorageAsk) error {
	b, err := cborutil.Dump(a)
	if err != nil {
		return err
	}
	if err := s.ds.Put(context.TODO(), s.dsKey, b); err != nil {
		return err
	}
	s.ask = a
	return nil
}
