package client

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// TermGrid puts stdin/stdout in raw mode (when both are real
// terminals) and drives a crude interactive grid view over a Client:
// arrow-key navigation is not implemented here (that belongs to a GUI,
// explicitly out of scope), but line-oriented commands are read one at
// a time the way repl's own line editor reads a script, restoring the
// terminal on exit the same way.
type TermGrid struct {
	c     *Client
	sheet int
	state *term.State
	in    *os.File
}

// NewTermGrid wraps c for sheet. Raw mode is only engaged if stdin is
// a real terminal; otherwise commands are read as plain buffered
// lines, which keeps the client usable when piped or scripted.
func NewTermGrid(c *Client, sheet int) *TermGrid {
	tg := &TermGrid{c: c, sheet: sheet}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if state, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
			tg.state = state
			tg.in = os.Stdin
		}
	}
	return tg
}

// Close restores the terminal if it was put into raw mode.
func (tg *TermGrid) Close() {
	if tg.state != nil {
		term.Restore(int(tg.in.Fd()), tg.state)
	}
}

// Run renders the current sheet, then loops reading "A1=value"
// commands from r until "quit" or EOF, applying each edit and
// re-rendering. Raw mode means the caller's reader should be
// line-buffered over the same fd TermGrid put in raw mode; when raw
// mode wasn't engaged, r may be any io.Reader (e.g. os.Stdin directly).
func (tg *TermGrid) Run(r io.Reader, w io.Writer) error {
	tg.render(w)
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, "\r\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		addr, text, ok := ParseCellInput(line)
		if !ok {
			fmt.Fprintf(w, "\r\nusage: A1=value\r\n")
			continue
		}
		row, col, err := parseAddress(addr)
		if err != nil {
			fmt.Fprintf(w, "\r\nbad address %q: %v\r\n", addr, err)
			continue
		}
		resp, err := tg.c.SetCell(tg.sheet, row, col, text)
		if err != nil {
			fmt.Fprintf(w, "\r\nerror: %v\r\n", err)
			continue
		}
		if wireErr, ok := resp["error"]; ok && wireErr != nil {
			fmt.Fprintf(w, "\r\nrejected: %v\r\n", wireErr)
			continue
		}
		tg.render(w)
	}
}

// render fetches a 20x8 snapshot of the sheet and prints it as a
// simple grid, column letters over row numbers, matching the crude
// terminal layout the original implementation's own client used.
func (tg *TermGrid) render(w io.Writer) {
	const rows, cols = 20, 8
	resp, err := tg.c.Inspect(tg.sheet, 0, 0, rows-1, cols-1)
	if err != nil {
		fmt.Fprintf(w, "\r\ninspect failed: %v\r\n", err)
		return
	}
	grid := make(map[[2]int]string)
	if cells, ok := resp["cells"].([]interface{}); ok {
		for _, raw := range cells {
			cell, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			row, _ := cell["row"].(float64)
			col, _ := cell["col"].(float64)
			grid[[2]int{int(row), int(col)}] = renderCellValue(cell["value"])
		}
	}
	fmt.Fprint(w, "\x1b[H\x1b[2J")
	fmt.Fprint(w, "     ")
	for c := 0; c < cols; c++ {
		fmt.Fprintf(w, "%-10s", columnLetters(c))
	}
	fmt.Fprint(w, "\r\n")
	for rIdx := 0; rIdx < rows; rIdx++ {
		fmt.Fprintf(w, "%-5d", rIdx+1)
		for c := 0; c < cols; c++ {
			fmt.Fprintf(w, "%-10s", grid[[2]int{rIdx, c}])
		}
		fmt.Fprint(w, "\r\n")
	}
}

func renderCellValue(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	switch m["kind"] {
	case "number":
		return strconv.FormatFloat(m["num"].(float64), 'g', -1, 64)
	case "text":
		s, _ := m["str"].(string)
		return s
	case "boolean":
		b, _ := m["bool"].(bool)
		if b {
			return "TRUE"
		}
		return "FALSE"
	case "error":
		s, _ := m["err"].(string)
		return s
	default:
		return ""
	}
}

// parseAddress parses a crude "A1" style address into zero-based
// row/col.
func parseAddress(addr string) (row, col int, err error) {
	i := 0
	for i < len(addr) && isLetter(addr[i]) {
		i++
	}
	if i == 0 || i == len(addr) {
		return 0, 0, fmt.Errorf("expected letters then digits")
	}
	col = columnIndex(strings.ToUpper(addr[:i]))
	rowNum, err := strconv.Atoi(addr[i:])
	if err != nil || rowNum < 1 {
		return 0, 0, fmt.Errorf("invalid row %q", addr[i:])
	}
	return rowNum - 1, col, nil
}

func isLetter(b byte) bool { return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') }

func columnIndex(letters string) int {
	col := 0
	for _, ch := range letters {
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1
}

func columnLetters(col int) string {
	col++
	var buf []byte
	for col > 0 {
		col--
		buf = append([]byte{byte('A' + col%26)}, buf...)
		col /= 26
	}
	return string(buf)
}
