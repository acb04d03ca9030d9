// Package keystore persists the per-family key slots every authentication
// engine draws from: a fixed 88-byte binary record per slot, loaded and
// saved the way the teacher's programmable-card file IDs were loaded and
// saved, but keyed by family and slot index instead of ATR pattern.
package keystore

import (
	"errors"
	"fmt"
	"os"
)

// Family identifies which authentication engine a key slot belongs to.
type Family string

const (
	FamilyDESFire Family = "desfire"
	FamilySEOS    Family = "seos"
	FamilyVAS     Family = "vas"
	FamilyFIDO    Family = "fido"
	FamilyEMRTD   Family = "emrtd"
	FamilyCIPURSE Family = "cipurse"
)

const (
	slotSize = 88
	// maxSlots bounds the in-memory slot table per family (spec's "bounded,
	// ≤16 per family" key-store invariant).
	maxSlots = 16
	// maxFileSlots bounds the on-disk keyring file to the 4 slots the CLI's
	// `--ki` key index (0..3) actually addresses; the key-ring file format
	// rejects anything larger regardless of how many in-memory slots a
	// family could otherwise hold.
	maxFileSlots = 4
	maxBytes     = slotSize * maxFileSlots
)

var (
	ErrSlotIndex   = errors.New("keystore: slot index out of range")
	ErrFieldLength = errors.New("keystore: field has wrong length")
	ErrFileTooBig  = errors.New("keystore: keyring file exceeds maximum slot count")
)

// Slot is one 88-byte key record: an 8-byte diversification nonce plus
// five 16-byte keys, exactly the layout spec's key-ring file carries.
type Slot struct {
	Nonce    [8]byte
	PrivEnc  [16]byte
	PrivMac  [16]byte
	ReadKey  [16]byte
	WriteKey [16]byte
	AdminKey [16]byte
}

func (s *Slot) encode() []byte {
	out := make([]byte, slotSize)
	copy(out[0:8], s.Nonce[:])
	copy(out[8:24], s.PrivEnc[:])
	copy(out[24:40], s.PrivMac[:])
	copy(out[40:56], s.ReadKey[:])
	copy(out[56:72], s.WriteKey[:])
	copy(out[72:88], s.AdminKey[:])
	return out
}

func decodeSlot(b []byte) Slot {
	var s Slot
	copy(s.Nonce[:], b[0:8])
	copy(s.PrivEnc[:], b[8:24])
	copy(s.PrivMac[:], b[24:40])
	copy(s.ReadKey[:], b[40:56])
	copy(s.WriteKey[:], b[56:72])
	copy(s.AdminKey[:], b[72:88])
	return s
}

// Store holds, for each family, up to maxSlots key slots addressed by
// index — the in-memory generalization of the single-keyring-file model
// to a reader that juggles six concurrent protocol families.
type Store struct {
	slots map[Family][maxSlots]Slot
}

// NewStore returns an empty key store.
func NewStore() *Store {
	return &Store{slots: make(map[Family][maxSlots]Slot)}
}

// Slot returns a copy of the slot at idx for family.
func (st *Store) Slot(family Family, idx int) (Slot, error) {
	if idx < 0 || idx >= maxSlots {
		return Slot{}, fmt.Errorf("%w: %d", ErrSlotIndex, idx)
	}
	return st.slots[family][idx], nil
}

// SlotField identifies which 16-byte key within a slot Set should write.
type SlotField int

const (
	FieldPrivEnc SlotField = iota
	FieldPrivMac
	FieldReadKey
	FieldWriteKey
	FieldAdminKey
)

// Set writes one field of one slot, validating the field is exactly
// 16 bytes (or 8 for the nonce, via SetNonce).
func (st *Store) Set(family Family, idx int, field SlotField, data []byte) error {
	if idx < 0 || idx >= maxSlots {
		return fmt.Errorf("%w: %d", ErrSlotIndex, idx)
	}
	if len(data) != 16 {
		return fmt.Errorf("%w: want 16 bytes, got %d", ErrFieldLength, len(data))
	}
	entry := st.slots[family]
	slot := entry[idx]
	var dst *[16]byte
	switch field {
	case FieldPrivEnc:
		dst = &slot.PrivEnc
	case FieldPrivMac:
		dst = &slot.PrivMac
	case FieldReadKey:
		dst = &slot.ReadKey
	case FieldWriteKey:
		dst = &slot.WriteKey
	case FieldAdminKey:
		dst = &slot.AdminKey
	default:
		return fmt.Errorf("keystore: unknown field %d", field)
	}
	copy(dst[:], data)
	entry[idx] = slot
	st.slots[family] = entry
	return nil
}

// SetNonce writes the 8-byte diversification nonce of a slot.
func (st *Store) SetNonce(family Family, idx int, nonce []byte) error {
	if idx < 0 || idx >= maxSlots {
		return fmt.Errorf("%w: %d", ErrSlotIndex, idx)
	}
	if len(nonce) != 8 {
		return fmt.Errorf("%w: want 8 bytes, got %d", ErrFieldLength, len(nonce))
	}
	entry := st.slots[family]
	slot := entry[idx]
	copy(slot.Nonce[:], nonce)
	entry[idx] = slot
	st.slots[family] = entry
	return nil
}

// Load reads a family's keyring file. Short files populate only the
// leading slots, leaving the rest zero; files bigger than maxFileSlots*88
// (4 slots, 352 bytes) are rejected, matching the key-ring file format's
// stated limit.
func Load(path string, family Family) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	if len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooBig, len(data), maxBytes)
	}

	st := NewStore()
	var entry [maxSlots]Slot
	n := len(data) / slotSize
	for i := 0; i < n; i++ {
		entry[i] = decodeSlot(data[i*slotSize : (i+1)*slotSize])
	}
	st.slots[family] = entry
	return st, nil
}

// Save writes the first slotCount slots for family to path, all-zero ones
// included (slotCount*88 bytes total). slotCount is capped at maxFileSlots,
// the same 4-slot ceiling Load enforces on read.
func (st *Store) Save(path string, family Family, slotCount int) error {
	if slotCount < 0 || slotCount > maxFileSlots {
		return fmt.Errorf("%w: slot count %d", ErrSlotIndex, slotCount)
	}
	entry := st.slots[family]
	out := make([]byte, 0, slotCount*slotSize)
	for i := 0; i < slotCount; i++ {
		out = append(out, entry[i].encode()...)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	return nil
}
