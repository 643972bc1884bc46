package menu

import "fmt"

func statusLine(update UpdatePayload) string {
	items := 0
	for _, g := range update.Groups {
		items += len(g.Entries)
	}
	switch {
	case update.Err != nil:
		return fmt.Sprintf("Refresh failed: %v", update.Err)
	case items == 1:
		return "1 menu bar item"
	default:
		return fmt.Sprintf("%d menu bar items in %d groups", items, len(update.Groups))
	}
}
