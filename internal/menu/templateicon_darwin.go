//go:build darwin && cgo

package menu

import "github.com/getlantern/systray"

// setTemplateIcon lets the menu bar tint the icon for light and dark mode.
func setTemplateIcon(icon []byte) {
	systray.SetTemplateIcon(icon, icon)
}
