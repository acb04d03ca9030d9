package families

import (
	"encoding/hex"
	"testing"

	"hfcore/keystore"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex decode %q: %v", s, err)
	}
	return b
}

// TestBACSeedAndKeyDerivationGoldenVector checks the ICAO 9303 Appendix D.2
// worked example: documentNumber=L898902C<, dob=690806, expiry=940623,
// each followed by its check digit (3, 1 and 6).
func TestBACSeedAndKeyDerivationGoldenVector(t *testing.T) {
	kmrz := "L898902C<369080619406236"
	seed := BACSeed(kmrz)
	wantSeed := mustHex(t, "239AB9CB282DAF66231DC5A4DF6BFBAE")
	if !bytesEqual(seed, wantSeed) {
		t.Fatalf("seed = %X, want %X", seed, wantSeed)
	}

	kEnc, kMac := DeriveBACKeys(seed)
	wantEnc := mustHex(t, "AB94FDECF2674FDFB9B391F85D7F76F2")
	wantMac := mustHex(t, "7962D9ECE03D1ACD4C76089DCE131543")
	if !bytesEqual(kEnc, wantEnc) {
		t.Fatalf("K_ENC = %X, want %X", kEnc, wantEnc)
	}
	if !bytesEqual(kMac, wantMac) {
		t.Fatalf("K_MAC = %X, want %X", kMac, wantMac)
	}
}

func TestEMRTDComposeAndVerifyRoundTrip(t *testing.T) {
	seed := BACSeed("L898902C<690806940623")
	kEnc, kMac := DeriveBACKeys(seed)

	st := keystore.NewStore()
	if err := st.Set(keystore.FamilyEMRTD, 0, keystore.FieldPrivEnc, kEnc); err != nil {
		t.Fatalf("Set PrivEnc: %v", err)
	}
	if err := st.Set(keystore.FamilyEMRTD, 0, keystore.FieldPrivMac, kMac); err != nil {
		t.Fatalf("Set PrivMac: %v", err)
	}
	slot, err := st.Slot(keystore.FamilyEMRTD, 0)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}

	e := &EMRTDEngine{}
	rndICC := mustHex(t, "4608F91988702212")

	msg, rndIFD, err := e.ComposeAuthMessage(rndICC, slot)
	if err != nil {
		t.Fatalf("ComposeAuthMessage: %v", err)
	}
	if len(msg) != 40 {
		t.Fatalf("auth message length = %d, want 40", len(msg))
	}
	if len(rndIFD) != 8 {
		t.Fatalf("rndIFD length = %d, want 8", len(rndIFD))
	}
	if len(e.kIFD) != 16 {
		t.Fatalf("engine did not retain K.IFD")
	}
}
