package keystore

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	colorHeader = text.Colors{text.FgCyan, text.Bold}
	colorLabel  = text.Colors{text.FgYellow}
	colorValue  = text.Colors{text.FgWhite}
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Options.SeparateRows = false
	t.SetStyle(style)
	return t
}

// Print renders every populated slot of family as a table; verbose shows
// full key material, otherwise keys are elided to their first 4 bytes.
func (st *Store) Print(family Family, verbose bool) {
	fmt.Println()
	t := newTable()
	t.SetTitle(fmt.Sprintf("KEY SLOTS — %s", family))
	t.AppendHeader(table.Row{"#", "Nonce", "PrivEnc", "PrivMac", "ReadKey", "WriteKey", "AdminKey"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 3},
		{Number: 2, Colors: colorValue},
	})

	entry := st.slots[family]
	for i, slot := range entry {
		if isZeroSlot(slot) {
			continue
		}
		row := table.Row{
			i,
			elide(slot.Nonce[:], verbose),
			elide(slot.PrivEnc[:], verbose),
			elide(slot.PrivMac[:], verbose),
			elide(slot.ReadKey[:], verbose),
			elide(slot.WriteKey[:], verbose),
			elide(slot.AdminKey[:], verbose),
		}
		t.AppendRow(row)
	}
	t.Render()
}

func elide(b []byte, verbose bool) string {
	if verbose || len(b) <= 4 {
		return fmt.Sprintf("%X", b)
	}
	return fmt.Sprintf("%X…", b[:4])
}

func isZeroSlot(s Slot) bool {
	return s == (Slot{})
}
