package main

import (
	"path/filepath"

	levelds "github.com/ipfs/go-ds-leveldb"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"

	"github.com/filecoin-project/storagemarketcore/chainevents"
	"github.com/filecoin-project/storagemarketcore/cmd/internal/devnode"
	"github.com/filecoin-project/storagemarketcore/cmd/internal/repokey"
	storageimpl "github.com/filecoin-project/storagemarketcore/storagemarket/impl"
	smlibp2p "github.com/filecoin-project/storagemarketcore/storagemarket/network/libp2p"
)

// buildClient wires a full Client against repoPath exactly as the propose
// command does. The query commands (list-deals, get-deal) reuse it too:
// go-statemachine resumes every non-final deal's entry func as soon as the
// FSM opens, so there is no side-effect-free way to read deal records back
// short of standing up the real environment. Callers must invoke the
// returned close func once done.
func buildClient(repoPath string) (*storageimpl.Client, host.Host, address.Address, func(), error) {
	cfg, err := loadConfig(repoPath)
	if err != nil {
		return nil, nil, address.Undef, nil, err
	}

	clientAddr, err := address.NewFromString(cfg.ClientAddr)
	if err != nil {
		return nil, nil, address.Undef, nil, xerrors.Errorf("parsing client-addr %q: %w", cfg.ClientAddr, err)
	}

	priv, err := repokey.LoadOrGenerate(repoPath)
	if err != nil {
		return nil, nil, address.Undef, nil, err
	}

	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		return nil, nil, address.Undef, nil, xerrors.Errorf("starting libp2p host: %w", err)
	}

	dealsDs, err := levelds.NewDatastore(filepath.Join(repoPath, "deals"), nil)
	if err != nil {
		h.Close()
		return nil, nil, address.Undef, nil, xerrors.Errorf("opening deals datastore: %w", err)
	}

	node := devnode.New(clientAddr, clientAddr)
	watcher := chainevents.NewSectorCommittedWatcher(node)
	net := smlibp2p.NewFromLibp2pHost(h)

	client, err := storageimpl.NewClient(net, dealsDs, watcher, node, nil)
	if err != nil {
		h.Close()
		return nil, nil, address.Undef, nil, xerrors.Errorf("building client: %w", err)
	}

	log.Infof("listening as %s on %s", h.ID(), h.Addrs())
	return client, h, clientAddr, func() { h.Close() }, nil
}
