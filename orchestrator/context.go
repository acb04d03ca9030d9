// Package orchestrator drives the top-level verbs (info, select, auth,
// read, write, managekeys, decrypt) that the cmd/ CLI exposes, wiring
// selector → families → session in the order spec.md's data-flow diagram
// lays out: C10 → C6 (select) → C7 (auth) → C8 wraps → transport → C8
// unwraps → C9/C3 parses → C10 returns.
//
// Context replaces the teacher's global key-slot array and log flag with
// an explicit value threaded through every verb, per design note §9's
// "global mutable state" flag: the key store is a field, not a package
// global, and every verb is a method taking that field as an argument
// rather than reading a process-wide variable.
package orchestrator

import (
	"errors"
	"fmt"

	"hfcore/keystore"
	"hfcore/session"
	"hfcore/transport"
)

// ErrCancelled is returned when a caller's Interrupt channel fires between
// two transport exchanges; the verb returns it before its next exchange.
// The field is dropped (unless KeepField is set) only where the cancel
// passes through teardown: during Auth's handshake or between chained
// Read/Write segments. A cancel caught at the start of Select, Read or
// Write returns without touching the field.
var ErrCancelled = errors.New("orchestrator: cancelled")

// ErrNoLiveSession is returned by Read/Write when no prior Auth call
// established a session for the requested family.
var ErrNoLiveSession = errors.New("orchestrator: no live session for family")

// Context is the single piece of state every verb operates on: the active
// transport connection, the process-wide key store, and one live session
// per family (a reader can hold a SEOS session and a FIDO exchange
// in flight without either clobbering the other's derived keys).
type Context struct {
	Transport *transport.Reader
	Keys      *keystore.Store
	Sessions  map[keystore.Family]*session.Session
	KeepField bool
	Interrupt <-chan struct{}
}

// New returns a Context ready to drive verbs against an already-connected
// transport and a loaded key store.
func New(t *transport.Reader, keys *keystore.Store) *Context {
	return &Context{
		Transport: t,
		Keys:      keys,
		Sessions:  make(map[keystore.Family]*session.Session),
	}
}

// checkCancel polls the interrupt channel between transport exchanges, the
// single cancellation point spec.md's concurrency model calls for.
func (c *Context) checkCancel() error {
	if c.Interrupt == nil {
		return nil
	}
	select {
	case <-c.Interrupt:
		return ErrCancelled
	default:
		return nil
	}
}

// teardown closes a family's session (if any) and, unless KeepField is
// set, drops the RF field. Verbs call it on their failure paths only,
// matching the state machine's "any MAC fail / timeout" transition
// straight to Closed; a verb that completes normally leaves its session
// live and the field up.
func (c *Context) teardown(family keystore.Family) {
	if s, ok := c.Sessions[family]; ok {
		s.Close()
		delete(c.Sessions, family)
	}
	if !c.KeepField && c.Transport != nil {
		_ = c.Transport.DropField()
	}
}

// liveSession returns the family's session, failing with ErrNoLiveSession
// if auth was never run or the session already tore down — the design
// note §9 "mixed plain/MAC/encrypted" Session, but guarded against being
// used before it exists.
func (c *Context) liveSession(family keystore.Family) (*session.Session, error) {
	s, ok := c.Sessions[family]
	if !ok || !s.Live {
		return nil, fmt.Errorf("%w: %s", ErrNoLiveSession, family)
	}
	return s, nil
}
