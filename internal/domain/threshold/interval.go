package threshold

import (
	"strconv"
	"strings"
)

// Point is one swept score and the class predicted for it.
type Point struct {
	Score int `json:"score"`
	Class int `json:"class"`
}

// Sweep is the ordered score-to-class map of one student.
type Sweep []Point

// ClassAt returns the class predicted at score.
func (s Sweep) ClassAt(score int) (int, bool) {
	for _, p := range s {
		if p.Score == score {
			return p.Class, true
		}
	}
	return 0, false
}

// Interval is a closed run [Lo, Hi] of swept scores.
type Interval struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Width returns the number of scores in the interval.
func (i Interval) Width() int {
	return i.Hi - i.Lo + 1
}

// Intervals are runs in sweep order.
type Intervals []Interval

// String renders the intervals as in the result sheets, e.g. "[(66, 72), (76, 90)]".
func (iv Intervals) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range iv {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(strconv.Itoa(r.Lo))
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(r.Hi))
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// Widest returns the first interval of maximal width.
func (iv Intervals) Widest() (Interval, bool) {
	if len(iv) == 0 {
		return Interval{}, false
	}
	best := iv[0]
	for _, r := range iv[1:] {
		if r.Width() > best.Width() {
			best = r
		}
	}
	return best, true
}

// ExtractIntervals groups maximal runs of consecutive points predicted as class.
// A run still open at the end of the sweep closes at the last swept score.
func ExtractIntervals(sweep Sweep, class int) Intervals {
	var (
		out   Intervals
		open  bool
		start int
	)
	for _, p := range sweep {
		if p.Class == class {
			if !open {
				start, open = p.Score, true
			}
			continue
		}
		if open {
			out = append(out, Interval{Lo: start, Hi: p.Score - 1})
			open = false
		}
	}
	if open {
		out = append(out, Interval{Lo: start, Hi: sweep[len(sweep)-1].Score})
	}
	return out
}
