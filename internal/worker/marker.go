package worker

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/Atelier/internal/model"
)

var (
	progressRx = regexp.MustCompile(`PROGRESS:(\d+)`)
	statusRx   = regexp.MustCompile(`^STATUS:(.*)$`)
)

// Update is the progress signal extracted from worker output.
type Update struct {
	Percent int
	Message string
}

// markerScanner finds PROGRESS:<n> and STATUS:<text> lines in a growing
// stream without rescanning what it has already seen.
type markerScanner struct {
	cursor  int
	percent int
	message string
}

// scan consumes the bytes of src after the cursor. Unless final is set a
// trailing line without newline is left for the next call. It reports
// whether a marker was found.
func (m *markerScanner) scan(src *buffer, final bool) (Update, bool) {
	chunk := src.Since(m.cursor)
	if !final {
		i := bytes.LastIndexByte(chunk, '\n')
		if i < 0 {
			return Update{}, false
		}
		chunk = chunk[:i+1]
	}
	m.cursor += len(chunk)

	var found bool
	for line := range bytes.Lines(chunk) {
		text := strings.TrimRight(string(line), "\r\n")
		if sm := statusRx.FindStringSubmatch(text); sm != nil {
			m.message = strings.TrimSpace(sm[1])
			found = true
		}
		pm := progressRx.FindAllStringSubmatch(text, -1)
		if len(pm) == 0 {
			continue
		}
		n, err := strconv.Atoi(pm[len(pm)-1][1])
		if err != nil {
			// digits beyond int range
			n = 100
		}
		m.percent = model.ClampPercent(n)
		found = true
	}
	return Update{Percent: m.percent, Message: m.message}, found
}
