// Package selector drives ISO 7816-4 application selection: enumerating
// candidate AIDs per family, falling back across SELECT P2 variants the
// way the teacher's card.Select did for USIM/ISIM stacks, and reaching
// SEOS's ADF by OID or an eMRTD data group by file ID.
package selector

import (
	"errors"
	"fmt"

	"hfcore/apdu"
	"hfcore/keystore"
)

// Exchanger is the subset of transport.Reader the selector needs: one
// blocking command/response round trip.
type Exchanger interface {
	Exchange(frame []byte) ([]byte, error)
}

var (
	ErrAidNotPresent = errors.New("selector: no candidate AID selected successfully")
	ErrFileNotFound  = errors.New("selector: file not found")
)

// AIDTable maps a family to its ordered list of candidate AIDs; earlier
// entries are tried first.
var AIDTable = map[keystore.Family][][]byte{
	keystore.FamilyDESFire: {
		{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x00},
	},
	keystore.FamilySEOS: {
		{0xA0, 0x00, 0x00, 0x04, 0x40, 0x00, 0x01},
		{0xA0, 0x00, 0x00, 0x04, 0x40, 0x00, 0x02},
	},
	keystore.FamilyVAS: {
		{0xA0, 0x00, 0x00, 0x08, 0x58, 0x01, 0x01},
	},
	keystore.FamilyFIDO: {
		{0xA0, 0x00, 0x00, 0x06, 0x47, 0x2F, 0x00, 0x01},
	},
	keystore.FamilyEMRTD: {
		{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01},
	},
	keystore.FamilyCIPURSE: {
		{0xA0, 0x00, 0x00, 0x06, 0x20, 0x00},
	},
}

// PxSEDirectoryAID is the well-known directory application SEOS-family
// readers probe before falling back to a direct AID guess.
var PxSEDirectoryAID = []byte{0x32, 0x50, 0x41, 0x59, 0x2E, 0x53, 0x59, 0x53, 0x2E, 0x44, 0x44, 0x46, 0x30, 0x31}

func buildSelectAID(aid []byte, p2 byte, withLe bool) []byte {
	a := apdu.New(0x00, 0xA4, 0x04, p2, aid, 0)
	if !withLe {
		a.HasLe = false
	}
	frame, _ := a.Encode() // a 7-byte AID body never overflows short form
	return frame
}

// SelectAID iterates AIDTable[family] and returns the first AID that
// selects successfully (SW=9000), along with the raw FCI body.
func SelectAID(x Exchanger, family keystore.Family) (aid []byte, fci []byte, err error) {
	candidates, ok := AIDTable[family]
	if !ok || len(candidates) == 0 {
		return nil, nil, fmt.Errorf("%w: no candidates registered for family %q", ErrAidNotPresent, family)
	}

	for _, cand := range candidates {
		fci, ok := SelectAIDBytes(x, cand)
		if ok {
			return cand, fci, nil
		}
	}
	return nil, nil, ErrAidNotPresent
}

// SelectAIDBytes selects one explicit AID (e.g. from `select --aid`,
// rather than AIDTable's per-family candidate list) and reports whether
// the card accepted it.
func SelectAIDBytes(x Exchanger, aid []byte) (fci []byte, ok bool) {
	fci, sw, err := trySelect(x, aid)
	if err != nil {
		return nil, false
	}
	if sw == apdu.SWOK {
		return fci, true
	}
	// 6A86 (incorrect P1/P2): retry with P2=00 and Le, asking for the FCI,
	// matching the teacher's Select() fallback idiom for picky stacks.
	if sw == 0x6A86 {
		frame := buildSelectAID(aid, 0x00, true)
		resp, exErr := x.Exchange(frame)
		if exErr != nil {
			return nil, false
		}
		body, sw2, decErr := apdu.Decode(resp)
		if decErr == nil && sw2 == apdu.SWOK {
			return body, true
		}
	}
	return nil, false
}

func trySelect(x Exchanger, aid []byte) ([]byte, uint16, error) {
	frame := buildSelectAID(aid, 0x0C, false)
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, 0, err
	}
	body, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, 0, err
	}
	return body, sw, nil
}

// SelectByOID selects SEOS's application data file by object identifier,
// building `80 A5 04 00 Lc 06 Loid OID 00`.
func SelectByOID(x Exchanger, oid []byte) ([]byte, error) {
	body := make([]byte, 0, 3+len(oid)+1)
	body = append(body, 0x06, byte(len(oid)))
	body = append(body, oid...)

	a := apdu.New(0x80, 0xA5, 0x04, 0x00, body, 0)
	frame, err := a.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, err
	}
	data, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if sw != apdu.SWOK {
		return nil, fmt.Errorf("selector: SELECT by OID failed, SW=%04X", sw)
	}
	return data, nil
}

// SelectFileID selects an eMRTD data group (or any 2-byte file ID) under
// the currently selected application.
func SelectFileID(x Exchanger, fid []byte) ([]byte, error) {
	if len(fid) != 2 {
		return nil, fmt.Errorf("selector: file ID must be 2 bytes, got %d", len(fid))
	}
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, fid, 0)
	frame, err := a.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, err
	}
	data, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if sw == 0x6A82 {
		return nil, ErrFileNotFound
	}
	if sw != apdu.SWOK {
		return nil, fmt.Errorf("selector: SELECT by file ID failed, SW=%04X", sw)
	}
	return data, nil
}

// WalkPxSEDirectory selects the PxSE directory application and returns its
// raw FCI, which a caller parses via tlv to discover candidate AIDs not
// already in AIDTable.
func WalkPxSEDirectory(x Exchanger) ([]byte, error) {
	a := apdu.New(0x00, 0xA4, 0x04, 0x0C, PxSEDirectoryAID, 0)
	frame, err := a.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, err
	}
	data, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if sw != apdu.SWOK {
		return nil, fmt.Errorf("%w: PxSE directory select failed, SW=%04X", ErrAidNotPresent, sw)
	}
	return data, nil
}
