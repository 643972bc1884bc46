//go:build !darwin && cgo

package menu

import "github.com/getlantern/systray"

func setTemplateIcon(icon []byte) {
	systray.SetIcon(icon)
}
