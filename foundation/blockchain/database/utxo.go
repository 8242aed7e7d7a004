package database

import (
	"bytes"
	"fmt"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
)

// UtxoEntry is one unspent output together with the metadata contextual
// validation needs: the height of the block that created it and whether
// that block's coinbase created it.
type UtxoEntry struct {
	Value      uint64
	PubKeyHash signature.PubKeyHash
	Height     uint32
	IsCoinbase bool
}

// Encode produces the storage encoding of the entry.
func (e UtxoEntry) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(8 + signature.AddressSize + 4 + 1)
	writeUint64(&buf, e.Value)
	buf.Write(e.PubKeyHash[:])
	writeUint32(&buf, e.Height)
	if e.IsCoinbase {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DecodeUtxoEntry decodes a storage encoding of an entry.
func DecodeUtxoEntry(data []byte) (UtxoEntry, error) {
	r := reader{data: data}

	var e UtxoEntry
	e.Value = r.uint64()
	copy(e.PubKeyHash[:], r.take(signature.AddressSize))
	e.Height = r.uint32()
	if flag := r.take(1); flag != nil {
		switch flag[0] {
		case 0:
			e.IsCoinbase = false
		case 1:
			e.IsCoinbase = true
		default:
			r.fail("invalid coinbase flag 0x%02x", flag[0])
		}
	}

	if err := r.done(); err != nil {
		return UtxoEntry{}, err
	}
	return e, nil
}

// =============================================================================

// UtxoReader is the read side of a UTXO set. The bool result reports
// whether the outpoint is currently unspent.
type UtxoReader interface {
	GetUtxo(op OutPoint) (UtxoEntry, bool, error)
}

// =============================================================================

// DeltaOp is one UTXO mutation recorded while connecting a block: either
// the spend of an existing entry or the creation of a new one. Spends keep
// the prior entry so the op can be inverted on disconnect.
type DeltaOp struct {
	Spend    bool
	OutPoint OutPoint
	Entry    UtxoEntry
}

// Delta is the ordered list of UTXO mutations one block performs. Applying
// the ops in order connects the block; applying the inverted ops in reverse
// order disconnects it.
type Delta struct {
	Ops []DeltaOp
}

// Encode produces the storage encoding of the delta.
func (d Delta) Encode() []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(d.Ops)))
	for _, op := range d.Ops {
		if op.Spend {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.Write(op.OutPoint.Key())
		buf.Write(op.Entry.Encode())
	}
	return buf.Bytes()
}

// DecodeDelta decodes a storage encoding of a delta.
func DecodeDelta(data []byte) (Delta, error) {
	r := reader{data: data}

	var d Delta
	numOps := r.uint32()
	if numOps > maxTxSlots {
		return Delta{}, fmt.Errorf("delta op count %d too large", numOps)
	}
	for i := uint32(0); i < numOps && r.err == nil; i++ {
		var op DeltaOp
		if flag := r.take(1); flag != nil {
			op.Spend = flag[0] == 1
		}

		key := r.take(36)
		if key != nil {
			outPoint, err := ToOutPoint(key)
			if err != nil {
				r.fail("delta op %d: %s", i, err)
			}
			op.OutPoint = outPoint
		}

		op.Entry.Value = r.uint64()
		copy(op.Entry.PubKeyHash[:], r.take(signature.AddressSize))
		op.Entry.Height = r.uint32()
		if flag := r.take(1); flag != nil {
			op.Entry.IsCoinbase = flag[0] == 1
		}

		d.Ops = append(d.Ops, op)
	}

	if err := r.done(); err != nil {
		return Delta{}, err
	}
	return d, nil
}

// =============================================================================

// UtxoView is a mutable overlay on top of a base UTXO set. Spends and
// creations land in the overlay only; the base is never touched. The view
// records every mutation in order so the caller can persist the resulting
// delta atomically, and the delta of one transaction is visible to the
// next transaction validated against the same view.
type UtxoView struct {
	base  UtxoReader
	added map[OutPoint]UtxoEntry
	spent map[OutPoint]struct{}
	delta Delta
}

// NewUtxoView constructs a view over the base set.
func NewUtxoView(base UtxoReader) *UtxoView {
	return &UtxoView{
		base:  base,
		added: make(map[OutPoint]UtxoEntry),
		spent: make(map[OutPoint]struct{}),
	}
}

// GetUtxo returns the entry for the outpoint as seen through the overlay.
func (v *UtxoView) GetUtxo(op OutPoint) (UtxoEntry, bool, error) {
	if _, ok := v.spent[op]; ok {
		return UtxoEntry{}, false, nil
	}
	if entry, ok := v.added[op]; ok {
		return entry, true, nil
	}
	return v.base.GetUtxo(op)
}

// Spend marks the outpoint spent in the overlay and records the prior
// entry in the delta. Spending an unknown or already spent outpoint is an
// error.
func (v *UtxoView) Spend(op OutPoint) (UtxoEntry, error) {
	entry, ok, err := v.GetUtxo(op)
	if err != nil {
		return UtxoEntry{}, err
	}
	if !ok {
		return UtxoEntry{}, fmt.Errorf("outpoint %s is not unspent", op)
	}

	if _, wasAdded := v.added[op]; wasAdded {
		delete(v.added, op)
	} else {
		v.spent[op] = struct{}{}
	}

	v.delta.Ops = append(v.delta.Ops, DeltaOp{
		Spend:    true,
		OutPoint: op,
		Entry:    entry,
	})
	return entry, nil
}

// Add creates a new entry in the overlay and records it in the delta.
// Creating an outpoint that is already unspent is an error.
func (v *UtxoView) Add(op OutPoint, entry UtxoEntry) error {
	if _, ok, err := v.GetUtxo(op); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("outpoint %s already unspent", op)
	}

	v.added[op] = entry
	delete(v.spent, op)

	v.delta.Ops = append(v.delta.Ops, DeltaOp{
		Spend:    false,
		OutPoint: op,
		Entry:    entry,
	})
	return nil
}

// Delta returns the mutations recorded so far, in application order.
func (v *UtxoView) Delta() Delta {
	return v.delta
}
