package command

import (
	"fmt"
	"strings"
)

func (d *Dispatcher) helpText() string {
	p := d.parser.Prefix()
	var b strings.Builder
	b.WriteString("🤖 Reminder Bot\n\n")
	b.WriteString("Personal Reminders:\n")
	fmt.Fprintf(&b, "• %sremind <msg> at <date/time>\n", p)
	fmt.Fprintf(&b, "• %srecurring <msg> <freq> at <time>\n\n", p)
	b.WriteString("Broadcasts:\n")
	fmt.Fprintf(&b, "• %sbroadcast <msg> <freq> at <time> to <chats>\n", p)
	fmt.Fprintf(&b, "• %sbroadcast-once <msg> at <time> to <chats>\n\n", p)
	b.WriteString("Management:\n")
	fmt.Fprintf(&b, "• %slist - View reminders\n", p)
	fmt.Fprintf(&b, "• %scancel <id> - Cancel reminder\n", p)
	fmt.Fprintf(&b, "• %schats [query] - List chats\n\n", p)
	b.WriteString("Examples:\n")
	fmt.Fprintf(&b, "%sremind Buy milk at 2026-12-20 18:00\n", p)
	fmt.Fprintf(&b, "%srecurring Standup daily at 09:00\n", p)
	fmt.Fprintf(&b, "%sbroadcast Good morning! daily at 08:00 to Team A, Team B\n", p)
	fmt.Fprintf(&b, "%schats", p)
	return b.String()
}
