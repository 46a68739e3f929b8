package pathexpand

import (
	"fmt"
	"strings"
	"time"
)

// strftime translates the calendar-time format codes a crash-handler
// template realistically uses. Go's reference-time layout cannot
// express strftime directly, so this is a small hand-written
// translator; codes it doesn't cover pass through literally, matching
// strftime's own behavior for codes it doesn't recognize on a given
// platform.
func strftime(layout string, t time.Time) string {
	var out strings.Builder
	out.Grow(len(layout))

	runes := []rune(layout)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '%' || i+1 >= len(runes) {
			out.WriteRune(runes[i])
			continue
		}

		i++
		switch runes[i] {
		case 'Y':
			fmt.Fprintf(&out, "%04d", t.Year())
		case 'y':
			fmt.Fprintf(&out, "%02d", t.Year()%100)
		case 'm':
			fmt.Fprintf(&out, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&out, "%02d", t.Day())
		case 'e':
			fmt.Fprintf(&out, "%2d", t.Day())
		case 'H':
			fmt.Fprintf(&out, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&out, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&out, "%02d", t.Second())
		case 'j':
			fmt.Fprintf(&out, "%03d", t.YearDay())
		case 'Z':
			out.WriteString(t.Format("MST"))
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case '%':
			out.WriteByte('%')
		default:
			// Unknown code: pass through verbatim, as real strftime
			// implementations do for codes they don't support.
			out.WriteByte('%')
			out.WriteRune(runes[i])
		}
	}

	return out.String()
}
