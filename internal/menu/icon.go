package menu

import _ "embed"

//go:embed assets/thaw.png
var iconData []byte
