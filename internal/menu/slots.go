package menu

// menuItem is the part of a tray menu item the listing updates in place.
type menuItem interface {
	SetTitle(title string)
	SetTooltip(tooltip string)
	Show()
	Hide()
}

// groupItem is a top-level listing item that owns sub-items.
type groupItem interface {
	menuItem
	addChild(title, tooltip string) menuItem
}

type groupSlot struct {
	item     groupItem
	children []menuItem
}

// groupSlots lays listings out on tray items that are created once and then
// reused. Tray menus cannot delete items, so a rebuild per refresh would grow
// the menu for the life of the process. The item count is bounded by the
// largest listing seen.
type groupSlots struct {
	addGroup func(title string) groupItem
	slots    []*groupSlot
}

func (s *groupSlots) render(groups []Group) {
	for i, group := range groups {
		if i == len(s.slots) {
			s.slots = append(s.slots, &groupSlot{item: s.addGroup(group.Name)})
		}
		slot := s.slots[i]
		slot.item.SetTitle(group.Name)
		slot.item.Show()

		for j, e := range group.Entries {
			if j == len(slot.children) {
				slot.children = append(slot.children, slot.item.addChild(e.Label(), e.OwnerLabel()))
			}
			child := slot.children[j]
			child.SetTitle(e.Label())
			child.SetTooltip(e.OwnerLabel())
			child.Show()
		}
		for _, child := range slot.children[len(group.Entries):] {
			child.Hide()
		}
	}
	for _, slot := range s.slots[min(len(groups), len(s.slots)):] {
		slot.item.Hide()
	}
}

// items reports how many tray items the slots hold.
func (s *groupSlots) items() int {
	n := 0
	for _, slot := range s.slots {
		n += 1 + len(slot.children)
	}
	return n
}
