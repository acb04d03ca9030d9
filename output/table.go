// Package output renders hfcore's results to the terminal: go-pretty
// tables for structured data (reader lists, key slots, TLV trees), plain
// colored lines for status messages, matching the teacher's rendering
// idiom carried over from the SIM-card tool.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"hfcore/families"
	"hfcore/keystore"
	"hfcore/orchestrator"
	"hfcore/session"
	"hfcore/tlv"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorSuccess = text.Colors{text.FgGreen}
	colorError   = text.Colors{text.FgRed}
	colorWarn    = text.Colors{text.FgYellow}
)

func getTableStyle() table.Style {
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Color.Row = text.Colors{text.FgWhite}
	style.Color.RowAlternate = text.Colors{text.FgHiWhite}
	style.Options.SeparateRows = false
	return style
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(getTableStyle())
	t.Style().Options.SeparateRows = false
	return t
}

// PrintError prints a failure message in red.
func PrintError(msg string) {
	fmt.Println(colorError.Sprint("✗ " + msg))
}

// PrintSuccess prints a confirmation message in green.
func PrintSuccess(msg string) {
	fmt.Println(colorSuccess.Sprint("✓ " + msg))
}

// PrintWarning prints a caution message in yellow.
func PrintWarning(msg string) {
	fmt.Println(colorWarn.Sprint("! " + msg))
}

// PrintReaderList renders every attached PC/SC reader with its index.
func PrintReaderList(readers []string) {
	fmt.Println()
	t := newTable()
	t.SetTitle("AVAILABLE READERS")
	t.AppendHeader(table.Row{"#", "Name"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 3},
		{Number: 2, Colors: colorValue},
	})
	for i, name := range readers {
		t.AppendRow(table.Row{i, name})
	}
	t.Render()
}

// PrintInfo renders the Info verb's result: reader identity, card ATR, and
// (once selected) the active family and its FCI.
func PrintInfo(r orchestrator.InfoResult) {
	fmt.Println()
	t := newTable()
	t.SetTitle("READER / CARD INFO")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"Reader", r.ReaderName})
	t.AppendRow(table.Row{"ATR", r.ATRHex})
	if r.Family != "" {
		t.AppendRow(table.Row{"Family", string(r.Family)})
	}
	t.Render()
	if len(r.FCI) > 0 {
		PrintTLV("SELECTED FCI", r.FCI)
	}
}

// PrintSelectResult renders the Select verb's AID/FCI outcome.
func PrintSelectResult(r orchestrator.SelectResult) {
	fmt.Println()
	t := newTable()
	t.SetTitle("SELECT")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"AID/FID", fmt.Sprintf("%X", r.AID)})
	t.Render()
	PrintTLV("FCI", r.FCI)
}

// PrintTLV renders a BER-TLV blob as an indented tag/length/value tree
// under the given title, falling back to a raw hex dump when the blob
// does not parse (e.g. a plain binary file read, not an FCI).
func PrintTLV(title string, data []byte) {
	nodes, err := tlv.Parse(data)
	if err != nil {
		PrintHex(title, data)
		return
	}
	fmt.Println()
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Tag", "Len", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 6},
		{Number: 2, WidthMin: 5},
		{Number: 3, Colors: colorValue},
	})
	appendTLVRows(t, nodes, 0)
	t.Render()
}

func appendTLVRows(t table.Writer, nodes []tlv.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Constructed {
			t.AppendRow(table.Row{indent + n.Tag.String(), len(n.Value), ""})
			appendTLVRows(t, n.Children, depth+1)
			continue
		}
		t.AppendRow(table.Row{indent + n.Tag.String(), len(n.Value), fmt.Sprintf("% X", n.Value)})
	}
}

// PrintHex renders a raw byte slice as a titled hex dump, for payloads
// that are not BER-TLV (plain READ BINARY data, cryptogram payloads).
func PrintHex(title string, data []byte) {
	fmt.Println()
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Offset", "Bytes"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 6},
		{Number: 2, Colors: colorValue},
	})
	const width = 16
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		t.AppendRow(table.Row{fmt.Sprintf("%04X", off), fmt.Sprintf("% X", data[off:end])})
	}
	if len(data) == 0 {
		t.AppendRow(table.Row{"0000", "(empty)"})
	}
	t.Render()
}

// PrintAuthResult renders the derived session material an Auth verb call
// produced (keys are elided to their first 4 bytes, matching
// keystore.Store.Print's non-verbose mode).
func PrintAuthResult(family keystore.Family, r families.AuthResult) {
	fmt.Println()
	t := newTable()
	t.SetTitle(fmt.Sprintf("AUTH RESULT — %s", family))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"S_ENC", fmt.Sprintf("%X…", firstN(r.SEnc, 4))})
	t.AppendRow(table.Row{"S_MAC", fmt.Sprintf("%X…", firstN(r.SMac, 4))})
	t.AppendRow(table.Row{"SSC", fmt.Sprintf("%016X", r.SSC)})
	t.AppendRow(table.Row{"Req level", secLevelName(r.ReqLevel)})
	t.AppendRow(table.Row{"Resp level", secLevelName(r.RespLevel)})
	t.Render()
}

func secLevelName(l session.SecLevel) string {
	switch l {
	case session.Plain:
		return "plain"
	case session.MAC:
		return "mac"
	case session.Encrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

func firstN(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

// PrintVASCryptogram renders a decoded Apple/HID VAS cryptogram.
func PrintVASCryptogram(c *families.VASCryptogram) {
	fmt.Println()
	t := newTable()
	t.SetTitle("VAS CRYPTOGRAM")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"Timestamp", c.UnixTime()})
	t.AppendRow(table.Row{"Payload", fmt.Sprintf("% X", c.Payload)})
	t.Render()
}

// PrintFIDORegistration renders a verified U2F REGISTER outcome.
func PrintFIDORegistration(reg *families.RegistrationResponse, valid bool) {
	fmt.Println()
	t := newTable()
	t.SetTitle("FIDO REGISTRATION")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"Key handle", fmt.Sprintf("% X", reg.KeyHandle)})
	t.AppendRow(table.Row{"Public key", fmt.Sprintf("% X", reg.PublicKey)})
	t.AppendRow(table.Row{"Attestation valid", valid})
	t.Render()
}

// PrintFIDOAuthentication renders a verified U2F AUTHENTICATE outcome.
func PrintFIDOAuthentication(resp *families.AuthenticationResponse, valid bool) {
	fmt.Println()
	t := newTable()
	t.SetTitle("FIDO AUTHENTICATION")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 14},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})
	t.AppendRow(table.Row{"User presence", resp.UserPresence})
	t.AppendRow(table.Row{"Counter", resp.Counter})
	t.AppendRow(table.Row{"Signature valid", valid})
	t.Render()
}
