package fetcher

import (
	"regexp"
	"strconv"
	"strings"
)

var seatPattern = regexp.MustCompile(`(\d+) of (\d+)`)

// seatText is what the rendered class results panel tells us.
type seatText struct {
	Enrolled int
	Capacity int
	Title    string
}

func (s seatText) Open() int { return s.Capacity - s.Enrolled }

// parseSeatText pulls "N of M" (enrolled of capacity) out of the results panel text.
// The title is the panel's first line; a single-line panel has no usable title.
func parseSeatText(text string) (seatText, bool) {
	m := seatPattern.FindStringSubmatch(text)
	if m == nil {
		return seatText{}, false
	}
	enrolled, err1 := strconv.Atoi(m[1])
	capacity, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return seatText{}, false
	}

	var title string
	if first, _, ok := strings.Cut(text, "\n"); ok {
		title = strings.TrimSpace(first)
	}
	return seatText{Enrolled: enrolled, Capacity: capacity, Title: title}, true
}
