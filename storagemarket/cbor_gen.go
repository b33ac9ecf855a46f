package storagemarket

// Hand-written canonical CBOR marshaling for the wire- and chain-visible
// structures, in the style cbor-gen emits (fixed tuple/array encoding,
// deterministic field order, basic-kind fields inlined and struct fields
// delegated to their own MarshalCBOR) since the generator itself is not part
// of this module. Every type here must round-trip byte-for-byte so that
// getProposalCid is a pure function of the encoding.

import (
	"fmt"
	"io"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/crypto"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"
)

var lengthBufDealProposal = []byte{138} // array(10)

func (t *DealProposal) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}

	cw := cbg.NewCborWriter(w)

	if _, err := cw.Write(lengthBufDealProposal); err != nil {
		return err
	}

	// t.PieceCID (cid.Cid) (struct)
	if err := cbg.WriteCid(cw, t.PieceCID); err != nil {
		return xerrors.Errorf("failed to write cid field t.PieceCID: %w", err)
	}

	// t.PieceSize (abi.PaddedPieceSize) (uint64)
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(t.PieceSize)); err != nil {
		return err
	}

	// t.VerifiedDeal (bool) (bool)
	if err := cbg.WriteBool(cw, t.VerifiedDeal); err != nil {
		return err
	}

	// t.Client (address.Address) (struct)
	if err := t.Client.MarshalCBOR(cw); err != nil {
		return err
	}

	// t.Provider (address.Address) (struct)
	if err := t.Provider.MarshalCBOR(cw); err != nil {
		return err
	}

	// t.StartEpoch (abi.ChainEpoch) (int64)
	if err := writeInt64(cw, int64(t.StartEpoch)); err != nil {
		return err
	}

	// t.EndEpoch (abi.ChainEpoch) (int64)
	if err := writeInt64(cw, int64(t.EndEpoch)); err != nil {
		return err
	}

	// t.StoragePricePerEpoch (big.Int) (struct)
	if err := t.StoragePricePerEpoch.MarshalCBOR(cw); err != nil {
		return err
	}

	// t.ProviderCollateral (big.Int) (struct)
	if err := t.ProviderCollateral.MarshalCBOR(cw); err != nil {
		return err
	}

	// t.ClientCollateral (big.Int) (struct)
	return t.ClientCollateral.MarshalCBOR(cw)
}

func (t *DealProposal) UnmarshalCBOR(r io.Reader) (err error) {
	*t = DealProposal{}

	cr := cbg.NewCborReader(r)

	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	if maj != cbg.MajArray {
		return fmt.Errorf("cbor input should be of type array")
	}
	if extra != 10 {
		return fmt.Errorf("cbor input had wrong number of fields")
	}

	c, err := cbg.ReadCid(cr)
	if err != nil {
		return xerrors.Errorf("failed to read cid field t.PieceCID: %w", err)
	}
	t.PieceCID = c

	sz, err := readUint64(cr)
	if err != nil {
		return err
	}
	t.PieceSize = abi.PaddedPieceSize(sz)

	verified, err := readBool(cr)
	if err != nil {
		return err
	}
	t.VerifiedDeal = verified

	if err := t.Client.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.Client: %w", err)
	}
	if err := t.Provider.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.Provider: %w", err)
	}

	start, err := readInt64(cr)
	if err != nil {
		return err
	}
	t.StartEpoch = abi.ChainEpoch(start)

	end, err := readInt64(cr)
	if err != nil {
		return err
	}
	t.EndEpoch = abi.ChainEpoch(end)

	if err := t.StoragePricePerEpoch.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.StoragePricePerEpoch: %w", err)
	}
	if err := t.ProviderCollateral.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.ProviderCollateral: %w", err)
	}
	return t.ClientCollateral.UnmarshalCBOR(cr)
}

func (t *ClientDealProposal) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 2); err != nil {
		return err
	}
	if err := t.Proposal.MarshalCBOR(cw); err != nil {
		return err
	}
	return t.ClientSignature.MarshalCBOR(cw)
}

func (t *ClientDealProposal) UnmarshalCBOR(r io.Reader) (err error) {
	*t = ClientDealProposal{}
	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 2 {
		return fmt.Errorf("cbor input for ClientDealProposal had wrong array size/type")
	}
	if err := t.Proposal.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.Proposal: %w", err)
	}
	return t.ClientSignature.UnmarshalCBOR(cr)
}

func (t *StorageAsk) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 8); err != nil {
		return err
	}
	if err := t.Price.MarshalCBOR(cw); err != nil {
		return err
	}
	if err := t.VerifiedPrice.MarshalCBOR(cw); err != nil {
		return err
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(t.MinPieceSize)); err != nil {
		return err
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(t.MaxPieceSize)); err != nil {
		return err
	}
	if err := t.Miner.MarshalCBOR(cw); err != nil {
		return err
	}
	if err := writeInt64(cw, int64(t.Timestamp)); err != nil {
		return err
	}
	if err := writeInt64(cw, int64(t.Expiry)); err != nil {
		return err
	}
	return cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, t.SeqNo)
}

func (t *StorageAsk) UnmarshalCBOR(r io.Reader) (err error) {
	*t = StorageAsk{}
	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 8 {
		return fmt.Errorf("cbor input for StorageAsk had wrong array size/type")
	}
	if err := t.Price.UnmarshalCBOR(cr); err != nil {
		return err
	}
	if err := t.VerifiedPrice.UnmarshalCBOR(cr); err != nil {
		return err
	}
	mn, err := readUint64(cr)
	if err != nil {
		return err
	}
	t.MinPieceSize = abi.PaddedPieceSize(mn)
	mx, err := readUint64(cr)
	if err != nil {
		return err
	}
	t.MaxPieceSize = abi.PaddedPieceSize(mx)
	if err := t.Miner.UnmarshalCBOR(cr); err != nil {
		return err
	}
	ts, err := readInt64(cr)
	if err != nil {
		return err
	}
	t.Timestamp = abi.ChainEpoch(ts)
	ex, err := readInt64(cr)
	if err != nil {
		return err
	}
	t.Expiry = abi.ChainEpoch(ex)
	seq, err := readUint64(cr)
	if err != nil {
		return err
	}
	t.SeqNo = seq
	return nil
}

func (t *SignedStorageAsk) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 2); err != nil {
		return err
	}
	if err := t.Ask.MarshalCBOR(cw); err != nil {
		return err
	}
	return t.Signature.MarshalCBOR(cw)
}

func (t *SignedStorageAsk) UnmarshalCBOR(r io.Reader) (err error) {
	*t = SignedStorageAsk{}
	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 2 {
		return fmt.Errorf("cbor input for SignedStorageAsk had wrong array size/type")
	}
	t.Ask = new(StorageAsk)
	if err := t.Ask.UnmarshalCBOR(cr); err != nil {
		return xerrors.Errorf("unmarshaling t.Ask: %w", err)
	}
	t.Signature = new(crypto.Signature)
	return t.Signature.UnmarshalCBOR(cr)
}

func (t *DealRef) MarshalCBOR(w io.Writer) error {
	if t == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, 3); err != nil {
		return err
	}

	if len(t.TransferType) > cbg.MaxLength {
		return xerrors.Errorf("value in field t.TransferType was too long")
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len(t.TransferType))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, t.TransferType); err != nil {
		return err
	}

	if err := cbg.WriteCid(cw, t.Root); err != nil {
		return xerrors.Errorf("failed to write cid field t.Root: %w", err)
	}

	if t.PieceCid == nil {
		_, err := cw.Write(cbg.CborNull)
		return err
	}
	return cbg.WriteCid(cw, *t.PieceCid)
}

func (t *DealRef) UnmarshalCBOR(r io.Reader) (err error) {
	*t = DealRef{}
	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	if maj != cbg.MajArray || extra != 3 {
		return fmt.Errorf("cbor input for DealRef had wrong array size/type")
	}

	tt, err := cbg.ReadString(cr)
	if err != nil {
		return err
	}
	t.TransferType = tt

	root, err := cbg.ReadCid(cr)
	if err != nil {
		return xerrors.Errorf("failed to read cid field t.Root: %w", err)
	}
	t.Root = root

	b, err := cr.ReadByte()
	if err != nil {
		return err
	}
	if b != cbg.CborNull[0] {
		if err := cr.UnreadByte(); err != nil {
			return err
		}
		pc, err := cbg.ReadCid(cr)
		if err != nil {
			return xerrors.Errorf("failed to read cid field t.PieceCid: %w", err)
		}
		t.PieceCid = &pc
	}
	return nil
}

func writeInt64(cw *cbg.CborWriter, v int64) error {
	if v >= 0 {
		return cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(v))
	}
	return cw.WriteMajorTypeHeader(cbg.MajNegativeInt, uint64(-v-1))
}

func readInt64(cr *cbg.CborReader) (int64, error) {
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return 0, err
	}
	switch maj {
	case cbg.MajUnsignedInt:
		return int64(extra), nil
	case cbg.MajNegativeInt:
		return -1 - int64(extra), nil
	default:
		return 0, fmt.Errorf("wrong type for int64 field: %d", maj)
	}
}

func readUint64(cr *cbg.CborReader) (uint64, error) {
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return 0, err
	}
	if maj != cbg.MajUnsignedInt {
		return 0, fmt.Errorf("wrong type for uint64 field: %d", maj)
	}
	return extra, nil
}

func readBool(cr *cbg.CborReader) (bool, error) {
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return false, err
	}
	if maj != cbg.MajOther {
		return false, fmt.Errorf("booleans must be major type 7")
	}
	switch extra {
	case 20:
		return false, nil
	case 21:
		return true, nil
	default:
		return false, fmt.Errorf("booleans are either major type 7, value 20 or 21 (got %d)", extra)
	}
}
