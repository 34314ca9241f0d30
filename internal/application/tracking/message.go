package tracking

import (
	"fmt"
	"strings"

	"github.com/baechuer/seatwatch/internal/domain"
)

func seatWord(n int) string {
	if n == 1 {
		return "seat"
	}
	return "seats"
}

// notificationText renders the chat message for a rising edge.
func notificationText(r domain.TrackingRequest, res domain.FetchResult) string {
	var b strings.Builder

	switch r.Kind {
	case domain.KindByCatalog:
		b.WriteString("🎉 **Class spots available!**\n")
		fmt.Fprintf(&b, "**%s** - %s\n", r.Label(), domain.TermName(r.Term))
	default:
		b.WriteString("🎉 **Course available!**\n")
		fmt.Fprintf(&b, "**Course ID: %s** - %s\n", r.CourseID, domain.TermName(r.Term))
	}

	title := res.Title
	if title == "" {
		title = r.Title
	}
	if title != "" {
		fmt.Fprintf(&b, "%s\n", title)
	}
	fmt.Fprintf(&b, "%d open %s", res.SeatsOpen, seatWord(res.SeatsOpen))
	if res.SectionLabel != "" && r.Kind == domain.KindByCatalog {
		fmt.Fprintf(&b, " in section %s", res.SectionLabel)
	}
	b.WriteString(". Register now!")
	return b.String()
}
