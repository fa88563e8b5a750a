package audit

import (
	"fmt"
	"strings"
)

var masterCodes = map[string]string{
	MasterPlanning:    "PLAN",
	MasterDeciding:    "DECI",
	MasterDispatching: "ASSE",
	MasterResting:     "WAIT",
	MasterReporting:   "SUMU",
}

var thiefCodes = map[string]string{
	ThiefAtStaging:   "CONC",
	ThiefCrawlingIn:  "CRIN",
	ThiefAtTarget:    "ATRM",
	ThiefCrawlingOut: "CROU",
	ThiefAtDropoff:   "COLL",
}

func code(codes map[string]string, state string) string {
	if c, ok := codes[state]; ok {
		return c
	}
	return "----"
}

// Header returns the column header lines for st.
func Header(st Status, gap int, breakLines bool) []string {
	sp := strings.Repeat(" ", gap)
	var h1, h2, h3 strings.Builder

	h1.WriteString("MstT" + sp)
	h2.WriteString("Stat" + sp)
	thiefCol := "Stat" + sp + "S" + sp + "MD"
	for i := range st.Thieves {
		h1.WriteString(center(fmt.Sprintf("Thief %d", i+1), len(thiefCol)) + sp)
		h2.WriteString(thiefCol + sp)
	}
	h3.WriteString(strings.Repeat(" ", h1.Len()))
	var out []string
	if breakLines {
		out = append(out, h1.String(), h2.String())
		h1.Reset()
		h2.Reset()
		h3.Reset()
		h1.WriteString("\t")
		h2.WriteString("\t")
		h3.WriteString("\t")
	}

	elemCol := "Id" + sp + "Pos" + sp + "Cv"
	for i, c := range st.Cohorts {
		h1.WriteString(center(fmt.Sprintf("Assault Party %d", i+1), 3+gap+len(c.Members)*(len(elemCol)+gap)))
		h2.WriteString(strings.Repeat(" ", 3+gap))
		h3.WriteString("RId" + sp)
		for m := range c.Members {
			h2.WriteString(center(fmt.Sprintf("Elem %d", m+1), len(elemCol)) + sp)
			h3.WriteString(elemCol + sp)
		}
	}

	roomCol := "NP" + sp + "DT"
	h1.WriteString(center("Museum", len(st.Rooms)*(len(roomCol)+gap)))
	for i := range st.Rooms {
		h2.WriteString(center(fmt.Sprintf("Room %d", i+1), len(roomCol)) + sp)
		h3.WriteString(roomCol + sp)
	}
	return append(out, trimRight(h1.String()), trimRight(h2.String()), trimRight(h3.String()))
}

// Line renders st as one status line (two when breakLines is set).
func Line(st Status, gap int, breakLines bool) string {
	sp := strings.Repeat(" ", gap)
	var b strings.Builder

	b.WriteString(code(masterCodes, st.Master) + sp)
	for _, t := range st.Thieves {
		situation := "W"
		if t.InParty {
			situation = "P"
		}
		fmt.Fprintf(&b, "%s%s%s%s%2d%s", code(thiefCodes, t.State), sp, situation, sp, t.Agility, sp)
	}
	if breakLines {
		b.WriteString("\n\t")
	}
	for _, c := range st.Cohorts {
		if c.Room < 0 {
			b.WriteString("  -" + sp)
		} else {
			fmt.Fprintf(&b, "%3d%s", c.Room+1, sp)
		}
		for _, m := range c.Members {
			cv := 0
			if m.Carrying {
				cv = 1
			}
			fmt.Fprintf(&b, "%2d%s%3d%s%2d%s", m.Thief+1, sp, m.Pos, sp, cv, sp)
		}
	}
	for _, r := range st.Rooms {
		fmt.Fprintf(&b, "%2d%s%2d%s", r.Items, sp, r.Distance, sp)
	}
	return trimRight(b.String())
}

// FinalLine is the closing message written after the REPORT status line.
func FinalLine(total int) string {
	return fmt.Sprintf("My friends, tonight's effort produced %d priceless paintings!", total)
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}

func trimRight(s string) string { return strings.TrimRight(s, " ") }
