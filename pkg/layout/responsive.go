package layout

// Breakpoint maps a minimum viewport width to a column count.
type Breakpoint struct {
	MinWidth int
	Columns  int
}

// Breakpoints are ordered widest first.
var Breakpoints = []Breakpoint{
	{MinWidth: 1024, Columns: 3},
	{MinWidth: 768, Columns: 2},
	{MinWidth: 0, Columns: 1},
}

// ColumnsForWidth returns the number of gallery columns for a viewport width.
func ColumnsForWidth(width int) int {
	for _, b := range Breakpoints {
		if width >= b.MinWidth {
			return b.Columns
		}
	}
	return 1
}
