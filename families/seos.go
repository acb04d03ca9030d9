package families

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/selector"
	"hfcore/session"
	"hfcore/tlv"
	"hfcore/xcrypto"
)

// CipherSuite and HashAlg are the tagged union spec.md's design notes call
// for in place of switching on the ADF's raw cipher/hash ids throughout the
// handshake: DecodeADFCryptogram resolves the CD tag's two id bytes once,
// at the suite boundary, and every downstream SEOSEngine method takes the
// concrete algorithm instead of re-reading the id.
type CipherSuite int

const (
	TwoK3DesCbc CipherSuite = iota
	ThreeK3DesCbc
	Aes128Cbc
)

type HashAlg int

const (
	Sha1 HashAlg = iota
	Sha256
	Sha512
)

// cipherSuiteFromID maps the ADF CD tag's first id byte to a CipherSuite,
// rejecting anything a SEOS card might signal that this engine can't drive.
func cipherSuiteFromID(id byte) (CipherSuite, error) {
	switch id {
	case 0x00:
		return TwoK3DesCbc, nil
	case 0x01:
		return ThreeK3DesCbc, nil
	case 0x02:
		return Aes128Cbc, nil
	default:
		return 0, fmt.Errorf("%w: unsupported SEOS cipher suite id 0x%02X", ErrAuthFailed, id)
	}
}

// hashAlgFromID maps the ADF CD tag's second id byte to a HashAlg.
func hashAlgFromID(id byte) (HashAlg, error) {
	switch id {
	case 0x00:
		return Sha1, nil
	case 0x01:
		return Sha256, nil
	case 0x02:
		return Sha512, nil
	default:
		return 0, fmt.Errorf("%w: unsupported SEOS hash algorithm id 0x%02X", ErrAuthFailed, id)
	}
}

func hashSum(alg HashAlg, data []byte) []byte {
	switch alg {
	case Sha1:
		sum := sha1.Sum(data)
		return sum[:]
	case Sha512:
		sum := sha512.Sum512(data)
		return sum[:]
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

// blockSizeFor reports the cipher block size a suite's CBC mode uses: AES
// is 16 bytes, both 3DES variants are 8.
func blockSizeFor(suite CipherSuite) int {
	if suite == Aes128Cbc {
		return 16
	}
	return 8
}

// keyLenFor reports the diversified key length a suite's cipher needs:
// AES-128 and two-key 3DES both derive a 16-byte key (3DES expands it to
// the 24-byte K1‖K2‖K1 form internally), three-key 3DES needs the full
// 24 bytes from the KDF directly.
func keyLenFor(suite CipherSuite) int {
	if suite == ThreeK3DesCbc {
		return 24
	}
	return 16
}

func cbcEncrypt(suite CipherSuite, key, iv, data []byte) ([]byte, error) {
	if suite == Aes128Cbc {
		return xcrypto.AESCBCEncrypt(key, iv, data)
	}
	key24, err := xcrypto.ExpandTo3DESKey(key)
	if err != nil {
		return nil, err
	}
	return xcrypto.TDESCBCEncrypt(key24, iv, data)
}

func cbcDecrypt(suite CipherSuite, key, iv, data []byte) ([]byte, error) {
	if suite == Aes128Cbc {
		return xcrypto.AESCBCDecrypt(key, iv, data)
	}
	key24, err := xcrypto.ExpandTo3DESKey(key)
	if err != nil {
		return nil, err
	}
	return xcrypto.TDESCBCDecrypt(key24, iv, data)
}

func macFor(suite CipherSuite, key, data []byte) ([]byte, error) {
	if suite == Aes128Cbc {
		return xcrypto.AESCMAC8(key, data)
	}
	icv := make([]byte, 8)
	return xcrypto.RetailMAC(key[:16], icv, data)
}

// ADFCryptogram is the decoded form of a SEOS application-data-file
// descriptor: the OID and diversifier recovered from the encrypted `85`
// blob, plus the resolved cipher suite and hash algorithm the `CD` tag
// declares.
type ADFCryptogram struct {
	OID         []byte
	Diversifier []byte
	Nonce       []byte
	Suite       CipherSuite
	Hash        HashAlg
}

// DecodeADFCryptogram decrypts the `85` blob under the base read-key
// (AES-CBC, all-zero IV) and recovers the OID/diversifier TLVs and the
// trailing raw 8-byte nonce, checking the OID matches what the
// caller selected. The CD tag's cipher/hash ids are resolved here, once,
// at the suite boundary; an id this engine doesn't recognize fails the
// decode instead of being silently driven through the AES/SHA-256 path.
func DecodeADFCryptogram(fci []byte, baseReadKey []byte, selectedOID []byte) (*ADFCryptogram, error) {
	nodes, err := tlv.Parse(fci)
	if err != nil {
		return nil, fmt.Errorf("families: parse ADF FCI: %w", err)
	}
	cd := tlv.Find(nodes, tlv.Tag{0xCD})
	blob := tlv.Find(nodes, tlv.Tag{0x85})
	if cd == nil || blob == nil {
		return nil, fmt.Errorf("families: ADF FCI missing CD/85 objects")
	}
	if len(cd.Value) < 2 {
		return nil, fmt.Errorf("families: CD tag too short")
	}
	suite, err := cipherSuiteFromID(cd.Value[0])
	if err != nil {
		return nil, err
	}
	hash, err := hashAlgFromID(cd.Value[1])
	if err != nil {
		return nil, err
	}
	if len(blob.Value) != 64 {
		return nil, fmt.Errorf("families: ADF cryptogram must be 64 bytes, got %d", len(blob.Value))
	}

	iv := make([]byte, 16)
	plain, err := xcrypto.AESCBCDecrypt(baseReadKey, iv, blob.Value)
	if err != nil {
		return nil, err
	}

	inner, err := tlv.Parse(plain[:len(plain)-8])
	if err != nil {
		return nil, fmt.Errorf("families: parse ADF cryptogram plaintext: %w", err)
	}
	oidNode := tlv.Find(inner, tlv.Tag{0x06})
	divNode := tlv.Find(inner, tlv.Tag{0xCF})
	if oidNode == nil {
		return nil, fmt.Errorf("families: ADF cryptogram missing OID")
	}
	if !bytes.Equal(oidNode.Value, selectedOID) {
		return nil, fmt.Errorf("%w: ADF OID mismatch", ErrAuthFailed)
	}

	var diversifier []byte
	if divNode != nil {
		diversifier = divNode.Value
	}
	nonce := plain[len(plain)-8:]

	return &ADFCryptogram{
		OID:         oidNode.Value,
		Diversifier: diversifier,
		Nonce:       nonce,
		Suite:       suite,
		Hash:        hash,
	}, nil
}

// SEOSEngine implements the second-phase mutual authentication once an
// ADFCryptogram has recovered the diversified key material.
type SEOSEngine struct {
	ADF *ADFCryptogram
}

var _ Engine = &SEOSEngine{}

// diversify derives a per-card key from the base key and the ADF's
// diversifier using the suite's resolved hash algorithm, truncated to the
// key length the suite's cipher needs.
func diversify(hash HashAlg, keyLen int, base, diversifier []byte) ([]byte, error) {
	sum := hashSum(hash, append(append([]byte{}, base...), diversifier...))
	if keyLen > len(sum) {
		return nil, fmt.Errorf("%w: %d-byte hash output too short for a %d-byte key", ErrAuthFailed, len(sum), keyLen)
	}
	return sum[:keyLen], nil
}

func (e *SEOSEngine) GetChallenge(x selector.Exchanger, slot keystore.Slot) ([]byte, error) {
	a := apdu.New(0x00, 0x84, 0x00, 0x00, nil, 0x10)
	frame, err := a.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, err
	}
	body, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if sw != apdu.SWOK {
		return nil, fmt.Errorf("%w: SEOS GET CHALLENGE SW=%04X", ErrAuthFailed, sw)
	}
	return body, nil
}

func (e *SEOSEngine) ComposeAuthMessage(rndICC []byte, slot keystore.Slot) (msg, rndIFD []byte, err error) {
	if e.ADF == nil {
		return nil, nil, fmt.Errorf("%w: ComposeAuthMessage called before DecodeADFCryptogram", ErrAuthFailed)
	}
	bs := blockSizeFor(e.ADF.Suite)
	keyLen := keyLenFor(e.ADF.Suite)
	rndIFD = append(append([]byte{}, e.ADF.Nonce...), rndICC[:8]...)

	encKey, err := diversify(e.ADF.Hash, keyLen, slot.PrivEnc[:], e.ADF.Diversifier)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, bs)
	plain := xcrypto.Pad7816(append(append([]byte{}, rndIFD...), rndICC...), bs)
	enc, err := cbcEncrypt(e.ADF.Suite, encKey, iv, plain)
	if err != nil {
		return nil, nil, err
	}

	macKey, err := diversify(e.ADF.Hash, keyLen, slot.PrivMac[:], e.ADF.Diversifier)
	if err != nil {
		return nil, nil, err
	}
	tag, err := macFor(e.ADF.Suite, macKey, enc)
	if err != nil {
		return nil, nil, err
	}
	return append(enc, tag...), rndIFD, nil
}

func (e *SEOSEngine) SendAuth(x selector.Exchanger, msg []byte) ([]byte, uint16, error) {
	a := apdu.New(0x00, 0x82, 0x00, 0x00, msg, 0x00)
	frame, err := a.Encode()
	if err != nil {
		return nil, 0, err
	}
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

func (e *SEOSEngine) VerifyResponse(resp []byte, rndIFD []byte, slot keystore.Slot) ([]byte, error) {
	if e.ADF == nil {
		return nil, fmt.Errorf("%w: VerifyResponse called before DecodeADFCryptogram", ErrAuthFailed)
	}
	bs := blockSizeFor(e.ADF.Suite)
	keyLen := keyLenFor(e.ADF.Suite)
	tagLen := 8
	if len(resp) < tagLen {
		return nil, fmt.Errorf("%w: SEOS auth response too short", ErrAuthFailed)
	}
	macKey, err := diversify(e.ADF.Hash, keyLen, slot.PrivMac[:], e.ADF.Diversifier)
	if err != nil {
		return nil, err
	}
	enc, tag := resp[:len(resp)-tagLen], resp[len(resp)-tagLen:]
	expected, err := macFor(e.ADF.Suite, macKey, enc)
	if err != nil {
		return nil, err
	}
	if !bytesEqual(expected, tag) {
		return nil, fmt.Errorf("%w: SEOS auth response MAC mismatch", ErrAuthFailed)
	}
	encKey, err := diversify(e.ADF.Hash, keyLen, slot.PrivEnc[:], e.ADF.Diversifier)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, bs)
	padded, err := cbcDecrypt(e.ADF.Suite, encKey, iv, enc)
	if err != nil {
		return nil, err
	}
	plain, err := xcrypto.Unpad7816(padded, bs)
	if err != nil {
		return nil, err
	}
	if len(plain) < 16 || !bytesEqual(plain[16:], rndIFD) {
		return nil, fmt.Errorf("%w: RND.IFD echo mismatch", ErrAuthFailed)
	}
	return plain, nil
}

func (e *SEOSEngine) DeriveSession(rndIFD, rndICC []byte, slot keystore.Slot) (AuthResult, error) {
	if e.ADF == nil {
		return AuthResult{}, fmt.Errorf("%w: DeriveSession called before DecodeADFCryptogram", ErrAuthFailed)
	}
	keyLen := keyLenFor(e.ADF.Suite)
	combined := append(append([]byte{}, rndIFD...), rndICC...)
	digest := hashSum(e.ADF.Hash, append(append([]byte{}, e.ADF.Diversifier...), combined...))
	if len(digest) < 2*keyLen {
		return AuthResult{}, fmt.Errorf("%w: %d-byte hash output too short to derive two %d-byte session keys", ErrAuthFailed, len(digest), keyLen)
	}

	alg := session.AlgAES
	if e.ADF.Suite != Aes128Cbc {
		alg = session.Alg3DES
	}

	return AuthResult{
		SEnc:      digest[0:keyLen],
		SMac:      digest[keyLen : 2*keyLen],
		SSC:       sscFromLowHalves(rndICC, rndIFD),
		Alg:       alg,
		ReqLevel:  session.Encrypted,
		RespLevel: session.Encrypted,
		SMCLABit:  0x0C,
	}, nil
}
