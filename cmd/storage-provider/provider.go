package main

import (
	"path/filepath"

	ds "github.com/ipfs/go-datastore"
	levelds "github.com/ipfs/go-ds-leveldb"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/cmd/internal/devnode"
	"github.com/filecoin-project/storagemarketcore/cmd/internal/repokey"
	storageimpl "github.com/filecoin-project/storagemarketcore/storagemarket/impl"
	"github.com/filecoin-project/storagemarketcore/storagemarket/impl/storedask"
	smlibp2p "github.com/filecoin-project/storagemarketcore/storagemarket/network/libp2p"
	"github.com/filecoin-project/storagemarketcore/stores"
)

// buildProvider wires a full Provider against repoPath exactly as the run
// command does. It is also used by the query commands (list-deals,
// get-deal): go-statemachine resumes every non-final deal's entry func as
// soon as the FSM opens, so there is no lighter-weight, side-effect-free
// way to read deal records back than standing up the real environment.
// Callers must invoke the returned close func once done.
func buildProvider(repoPath string, storagePaths []string) (*storageimpl.Provider, host.Host, func(), error) {
	cfg, err := loadConfig(repoPath)
	if err != nil {
		return nil, nil, nil, err
	}

	minerAddr, err := address.NewFromString(cfg.MinerActor)
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("parsing miner-actor %q: %w", cfg.MinerActor, err)
	}
	workerAddr, err := address.NewFromString(cfg.Worker)
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("parsing worker %q: %w", cfg.Worker, err)
	}

	priv, err := repokey.LoadOrGenerate(repoPath)
	if err != nil {
		return nil, nil, nil, err
	}

	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		return nil, nil, nil, xerrors.Errorf("starting libp2p host: %w", err)
	}

	dealsDs, err := levelds.NewDatastore(filepath.Join(repoPath, "deals"), nil)
	if err != nil {
		h.Close()
		return nil, nil, nil, xerrors.Errorf("opening deals datastore: %w", err)
	}
	askDs, err := levelds.NewDatastore(filepath.Join(repoPath, "ask"), nil)
	if err != nil {
		h.Close()
		return nil, nil, nil, xerrors.Errorf("opening ask datastore: %w", err)
	}

	node := devnode.New(minerAddr, workerAddr)

	ask, err := storedask.NewStoredAsk(askDs, ds.NewKey("/storage-ask"), node, minerAddr)
	if err != nil {
		h.Close()
		return nil, nil, nil, xerrors.Errorf("opening stored ask: %w", err)
	}

	index := stores.NewIndex()
	store := stores.NewLocal(index, storagePaths)

	watcher := chainevents.NewSectorCommittedWatcher(node)
	net := smlibp2p.NewFromLibp2pHost(h)

	provider, err := storageimpl.NewProvider(net, dealsDs, store, nil, watcher, node, minerAddr, ask, nil)
	if err != nil {
		h.Close()
		return nil, nil, nil, xerrors.Errorf("building provider: %w", err)
	}

	return provider, h, func() { h.Close() }, nil
}
