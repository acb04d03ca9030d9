package selector

import (
	"bytes"
	"testing"

	"hfcore/apdu"
	"hfcore/keystore"
)

// fakeExchanger replays canned responses keyed by the exact frame it
// expects, falling back to a default SW if the frame is unrecognized.
type fakeExchanger struct {
	responses map[string][]byte
	calls     [][]byte
}

func (f *fakeExchanger) Exchange(frame []byte) ([]byte, error) {
	f.calls = append(f.calls, append([]byte(nil), frame...))
	if resp, ok := f.responses[string(frame)]; ok {
		return resp, nil
	}
	return []byte{0x6A, 0x82}, nil
}

func sw(body []byte, w uint16) []byte {
	return append(append([]byte(nil), body...), byte(w>>8), byte(w))
}

func TestSelectAIDFirstCandidateSucceeds(t *testing.T) {
	cand := AIDTable[keystore.FamilyDESFire][0]
	frame := buildSelectAID(cand, 0x0C, false)
	fx := &fakeExchanger{responses: map[string][]byte{
		string(frame): sw([]byte{0x6F, 0x00}, apdu.SWOK),
	}}

	aid, fci, err := SelectAID(fx, keystore.FamilyDESFire)
	if err != nil {
		t.Fatalf("SelectAID: %v", err)
	}
	if !bytes.Equal(aid, cand) {
		t.Fatalf("aid = %X, want %X", aid, cand)
	}
	if !bytes.Equal(fci, []byte{0x6F, 0x00}) {
		t.Fatalf("fci = %X, want 6F00", fci)
	}
}

func TestSelectAIDFallsBackOnIncorrectP1P2(t *testing.T) {
	cand := AIDTable[keystore.FamilySEOS][0]
	first := buildSelectAID(cand, 0x0C, false)
	retry := buildSelectAID(cand, 0x00, true)

	fx := &fakeExchanger{responses: map[string][]byte{
		string(first): sw(nil, 0x6A86),
		string(retry): sw([]byte{0x6F, 0x01}, apdu.SWOK),
	}}

	_, fci, err := SelectAID(fx, keystore.FamilySEOS)
	if err != nil {
		t.Fatalf("SelectAID: %v", err)
	}
	if !bytes.Equal(fci, []byte{0x6F, 0x01}) {
		t.Fatalf("fci = %X, want 6F01", fci)
	}
}

func TestSelectAIDTriesSecondCandidate(t *testing.T) {
	bad := AIDTable[keystore.FamilySEOS][0]
	good := AIDTable[keystore.FamilySEOS][1]
	badFrame := buildSelectAID(bad, 0x0C, false)
	goodFrame := buildSelectAID(good, 0x0C, false)

	fx := &fakeExchanger{responses: map[string][]byte{
		string(badFrame):  sw(nil, 0x6A82),
		string(goodFrame): sw([]byte{0x6F, 0x02}, apdu.SWOK),
	}}

	aid, _, err := SelectAID(fx, keystore.FamilySEOS)
	if err != nil {
		t.Fatalf("SelectAID: %v", err)
	}
	if !bytes.Equal(aid, good) {
		t.Fatalf("aid = %X, want second candidate %X", aid, good)
	}
}

func TestSelectAIDExhaustsCandidates(t *testing.T) {
	fx := &fakeExchanger{responses: map[string][]byte{}}
	_, _, err := SelectAID(fx, keystore.FamilyVAS)
	if err != ErrAidNotPresent {
		t.Fatalf("err = %v, want ErrAidNotPresent", err)
	}
}

func TestSelectAIDUnknownFamily(t *testing.T) {
	fx := &fakeExchanger{}
	_, _, err := SelectAID(fx, keystore.Family("bogus"))
	if err == nil {
		t.Fatal("expected error for unregistered family")
	}
}

func TestSelectByOIDSuccess(t *testing.T) {
	oid := []byte{0x2A, 0x03, 0x04}
	body := []byte{0x06, byte(len(oid))}
	body = append(body, oid...)
	a := apdu.New(0x80, 0xA5, 0x04, 0x00, body, 0)
	frame, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	fx := &fakeExchanger{responses: map[string][]byte{
		string(frame): sw([]byte{0x6F, 0x10}, apdu.SWOK),
	}}

	data, err := SelectByOID(fx, oid)
	if err != nil {
		t.Fatalf("SelectByOID: %v", err)
	}
	if !bytes.Equal(data, []byte{0x6F, 0x10}) {
		t.Fatalf("data = %X, want 6F10", data)
	}
}

func TestSelectByOIDFailureStatus(t *testing.T) {
	oid := []byte{0x2A}
	fx := &fakeExchanger{responses: map[string][]byte{}}
	if _, err := SelectByOID(fx, oid); err == nil {
		t.Fatal("expected error on non-9000 status")
	}
}

func TestSelectFileIDRejectsWrongLength(t *testing.T) {
	fx := &fakeExchanger{}
	if _, err := SelectFileID(fx, []byte{0x01}); err == nil {
		t.Fatal("expected error for non-2-byte file ID")
	}
}

func TestSelectFileIDNotFound(t *testing.T) {
	fid := []byte{0x01, 0x01}
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, fid, 0)
	frame, _ := a.Encode()
	fx := &fakeExchanger{responses: map[string][]byte{
		string(frame): sw(nil, 0x6A82),
	}}

	_, err := SelectFileID(fx, fid)
	if err != ErrFileNotFound {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestSelectFileIDSuccess(t *testing.T) {
	fid := []byte{0x01, 0x1E}
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, fid, 0)
	frame, _ := a.Encode()
	fx := &fakeExchanger{responses: map[string][]byte{
		string(frame): sw([]byte{0xDE, 0xAD}, apdu.SWOK),
	}}

	data, err := SelectFileID(fx, fid)
	if err != nil {
		t.Fatalf("SelectFileID: %v", err)
	}
	if !bytes.Equal(data, []byte{0xDE, 0xAD}) {
		t.Fatalf("data = %X, want DEAD", data)
	}
}

func TestWalkPxSEDirectorySuccess(t *testing.T) {
	a := apdu.New(0x00, 0xA4, 0x04, 0x0C, PxSEDirectoryAID, 0)
	frame, _ := a.Encode()
	fx := &fakeExchanger{responses: map[string][]byte{
		string(frame): sw([]byte{0x6F, 0x20}, apdu.SWOK),
	}}

	data, err := WalkPxSEDirectory(fx)
	if err != nil {
		t.Fatalf("WalkPxSEDirectory: %v", err)
	}
	if !bytes.Equal(data, []byte{0x6F, 0x20}) {
		t.Fatalf("data = %X, want 6F20", data)
	}
}

func TestWalkPxSEDirectoryNotPresent(t *testing.T) {
	fx := &fakeExchanger{responses: map[string][]byte{}}
	if _, err := WalkPxSEDirectory(fx); err == nil {
		t.Fatal("expected error when directory AID is absent")
	}
}
