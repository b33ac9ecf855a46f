// Package providerutils provides signing and verification helpers shared by
// the stored-ask service and both deal FSMs.
package providerutils

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-address"
	cborutil "github.com/filecoin-project/go-cbor-util"
	"github.com/filecoin-project/go-state-types/crypto"

	"github.com/filecoin-project/storagemarketcore/storagemarket"
)

// VerifyFunc validates a signature for a given address and bytes, matching
// the shape of StorageProviderNode.VerifySignature.
type VerifyFunc func(context.Context, crypto.Signature, address.Address, []byte, storagemarket.TipSetToken) (bool, error)

// VerifyProposal checks that the client's signature on sdp covers the
// canonical encoding of its own Proposal field.
func VerifyProposal(ctx context.Context, sdp storagemarket.ClientDealProposal, tok storagemarket.TipSetToken, verifier VerifyFunc) error {
	b, err := cborutil.Dump(&sdp.Proposal)
	if err != nil {
		return err
	}
	return VerifySignature(ctx, sdp.ClientSignature, sdp.Proposal.Client, b, tok, verifier)
}

// VerifySignature verifies signature over buf, claimed to be made by signer.
func VerifySignature(ctx context.Context, signature crypto.Signature, signer address.Address, buf []byte, tok storagemarket.TipSetToken, verifier VerifyFunc) error {
	verified, err := verifier(ctx, signature, signer, buf, tok)
	if err != nil {
		return xerrors.Errorf("verifying: %w", err)
	}
	if !verified {
		return xerrors.New("could not verify signature")
	}
	return nil
}

// WorkerLookupFunc resolves a miner's worker address, matching
// StorageProviderNode.GetMinerWorkerAddress.
type WorkerLookupFunc func(context.Context, address.Address, storagemarket.TipSetToken) (address.Address, error)

// SignFunc signs bytes on behalf of an address, matching
// StorageProviderNode.SignBytes.
type SignFunc func(context.Context, address.Address, []byte) (*crypto.Signature, error)

// SignMinerData canonically encodes data, looks up the miner's worker and
// signs the encoding with it.
func SignMinerData(ctx context.Context, data interface{}, miner address.Address, tok storagemarket.TipSetToken, workerLookup WorkerLookupFunc, sign SignFunc) (*crypto.Signature, error) {
	msg, err := cborutil.Dump(data)
	if err != nil {
		return nil, xerrors.Errorf("serializing: %w", err)
	}

	worker, err := workerLookup(ctx, miner, tok)
	if err != nil {
		return nil, err
	}

	sig, err := sign(ctx, worker, msg)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}
