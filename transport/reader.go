package transport

import (
	"fmt"

	"github.com/ebfe/scard"
)

// PollingMode selects the polling sequence Reader.Reconnect runs after
// resetting the card; Connect and Exchange do not consult it.
type PollingMode int

const (
	PollingStandard PollingMode = iota
	PollingECPVASOnly
)

// ecpVASFrame is the Enhanced Contactless Polling frame Apple/HID VAS
// readers prepend before WUPA to advertise VAS-only discovery.
var ecpVASFrame = []byte{0x6A, 0x01, 0x00, 0x00, 0x02, 0xE4, 0xD2}

// Reader wraps a PC/SC card handle with the family-agnostic exchange
// contract every higher layer is built on: one request frame in, one
// response frame (body + status word) out.
type Reader struct {
	ctx     *scard.Context
	card    *scard.Card
	name    string
	atr     []byte
	polling PollingMode
	keep    bool
}

// ListReaders returns the names of every PC/SC reader currently attached.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: establish PC/SC context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("transport: list readers: %w", err)
	}
	return readers, nil
}

// Connect opens reader index readerIndex and activates a contactless
// session against whatever card is currently presented.
func Connect(readerIndex int) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: establish PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("transport: list readers: %w", err)
	}
	if len(readers) == 0 {
		ctx.Release()
		return nil, ErrNoReaders
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("%w: %d (have 0-%d)", ErrReaderIndex, readerIndex, len(readers)-1)
	}

	name := readers[readerIndex]
	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("%w: connect to '%s': %v", ErrNoCard, name, err)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		ctx.Release()
		return nil, fmt.Errorf("transport: card status: %w", err)
	}

	return &Reader{
		ctx:  ctx,
		card: card,
		name: name,
		atr:  status.Atr,
	}, nil
}

// ConnectFirst connects to the first reader PC/SC lists (index 0); it does
// not look for another reader when that one holds no card.
func ConnectFirst() (*Reader, error) {
	return Connect(0)
}

// SetPollingMode configures whether Reconnect sends the ECP VAS-only
// discovery frame once the PC/SC reconnect has completed. Reconnect to
// apply a change.
func (r *Reader) SetPollingMode(mode PollingMode) {
	r.polling = mode
}

// MaxFrameSize returns the largest APDU body the underlying contactless
// frame can carry in one exchange; apdu.Chain uses this to decide whether
// a command needs command chaining.
func (r *Reader) MaxFrameSize() int {
	return 255
}

// Exchange transmits one APDU frame and returns the raw response
// (body ‖ SW1 ‖ SW2), matching the out-of-scope transport contract every
// higher layer calls through.
func (r *Reader) Exchange(frame []byte) ([]byte, error) {
	resp, err := r.card.Transmit(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: response too short (%d bytes)", ErrExchangeFailed, len(resp))
	}
	return resp, nil
}

// DropField releases the card handle without reconnecting, the contactless
// equivalent of powering off the RF field.
func (r *Reader) DropField() error {
	if r.card == nil {
		return nil
	}
	return r.card.Disconnect(scard.ResetCard)
}

// Close releases the card handle and PC/SC context.
func (r *Reader) Close() error {
	if r.card != nil {
		r.card.Disconnect(scard.LeaveCard)
	}
	if r.ctx != nil {
		r.ctx.Release()
	}
	return nil
}

// Name returns the underlying PC/SC reader name.
func (r *Reader) Name() string { return r.name }

// ATR returns the raw Answer To Reset bytes captured at connect time.
func (r *Reader) ATR() []byte { return r.atr }

// ATRHex renders the ATR as an uppercase hex string.
func (r *Reader) ATRHex() string {
	return fmt.Sprintf("%X", r.atr)
}

// Reconnect resets the card, re-running the configured polling sequence.
// A cold reset power-cycles the field; a warm reset keeps it energized.
func (r *Reader) Reconnect(cold bool) error {
	if r.card == nil {
		return ErrNoCard
	}
	disposition := scard.ResetCard
	if cold {
		disposition = scard.UnpowerCard
	}
	if err := r.card.Reconnect(scard.ShareShared, scard.ProtocolAny, disposition); err != nil {
		return fmt.Errorf("transport: reconnect: %w", err)
	}
	if r.polling == PollingECPVASOnly {
		// ECP VAS-only discovery is a polling-frame advertisement rather
		// than a distinct reader command in this PC/SC abstraction; the
		// frame is folded into the pre-activation exchange so consumers
		// never need to special-case contactless readers that ignore it.
		_, _ = r.card.Transmit(ecpVASFrame)
	}
	status, err := r.card.Status()
	if err == nil {
		r.atr = status.Atr
	}
	return nil
}
