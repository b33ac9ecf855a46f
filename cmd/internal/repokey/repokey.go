// Package repokey loads or creates the libp2p identity key each command
// front-end's repo directory persists across restarts.
package repokey

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
	"golang.org/x/xerrors"
)

const keyFileName = "libp2p.key"

// LoadOrGenerate reads repoPath/libp2p.key, generating and persisting a
// fresh Ed25519 key the first time it's called against a given repo.
func LoadOrGenerate(repoPath string) (crypto.PrivKey, error) {
	if err := os.MkdirAll(repoPath, 0700); err != nil {
		return nil, xerrors.Errorf("creating repo dir: %w", err)
	}

	keyPath := filepath.Join(repoPath, keyFileName)

	raw, err := os.ReadFile(keyPath)
	if err == nil {
		return crypto.UnmarshalPrivateKey(raw)
	}
	if !os.IsNotExist(err) {
		return nil, xerrors.Errorf("reading %s: %w", keyPath, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, xerrors.Errorf("generating libp2p key: %w", err)
	}

	raw, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, xerrors.Errorf("marshaling libp2p key: %w", err)
	}

	if err := os.WriteFile(keyPath, raw, 0600); err != nil {
		return nil, xerrors.Errorf("writing %s: %w", keyPath, err)
	}

	return priv, nil
}
