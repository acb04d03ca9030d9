package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"hfcore/keystore"
	"hfcore/orchestrator"
	"hfcore/output"
	"hfcore/transport"
)

// parseFamily validates and converts the --family flag.
func parseFamily() (keystore.Family, error) {
	switch familyFlag {
	case string(keystore.FamilyDESFire), string(keystore.FamilySEOS), string(keystore.FamilyVAS),
		string(keystore.FamilyFIDO), string(keystore.FamilyEMRTD), string(keystore.FamilyCIPURSE):
		return keystore.Family(familyFlag), nil
	case "":
		return "", fail(1, fmt.Errorf("--family is required (desfire, seos, vas, fido, emrtd, cipurse)"))
	default:
		return "", fail(1, fmt.Errorf("unknown family %q", familyFlag))
	}
}

// parseHex decodes a CLI hex argument, wrapping malformed input as an
// invalid-argument exit.
func parseHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fail(1, fmt.Errorf("invalid hex for %s: %w", name, err))
	}
	return b, nil
}

// connect opens the configured (or auto-selected) reader and loads the
// key store from --keys, building the orchestrator.Context every verb
// drives. Callers are responsible for closing the returned Context's
// transport.
func connect() (*orchestrator.Context, error) {
	idx := readerIndex
	if idx < 0 {
		readers, err := transport.ListReaders()
		if err != nil {
			return nil, fail(2, err)
		}
		if len(readers) == 0 {
			return nil, fail(2, transport.ErrNoReaders)
		}
		idx = 0
		if len(readers) > 1 {
			output.PrintReaderList(readers)
			printWarning(fmt.Sprintf("multiple readers found, auto-selecting %q (use -r to pick another)", readers[0]))
		}
	}

	r, err := transport.Connect(idx)
	if err != nil {
		return nil, fail(2, err)
	}

	keys := keystore.NewStore()
	if keysPath != "" {
		family, ferr := parseFamily()
		if ferr != nil {
			r.Close()
			return nil, ferr
		}
		loaded, lerr := keystore.Load(keysPath, family)
		if lerr != nil {
			r.Close()
			if os.IsNotExist(lerr) {
				return nil, fail(7, lerr)
			}
			return nil, fail(4, lerr)
		}
		keys = loaded
	}

	return orchestrator.New(r, keys), nil
}

// selectReadWriteTarget resolves read/write's --fid or --aid/--chfid flags
// into the selections they require before a file exchange: a bare file ID
// selects directly, while an AID selects the application first and then
// the child file ID under it.
func selectReadWriteTarget(ctx *orchestrator.Context, family keystore.Family, fidHex, aidHex, chfidHex string) error {
	if fidHex != "" {
		fid, err := parseHex("--fid", fidHex)
		if err != nil {
			return err
		}
		if _, err := ctx.Select(family, nil, fid); err != nil {
			return failAny(err)
		}
		return nil
	}

	aid, err := parseHex("--aid", aidHex)
	if err != nil {
		return err
	}
	if _, err := ctx.Select(family, aid, nil); err != nil {
		return failAny(err)
	}
	chfid, err := parseHex("--chfid", chfidHex)
	if err != nil {
		return err
	}
	if _, err := ctx.Select(family, nil, chfid); err != nil {
		return failAny(err)
	}
	return nil
}
