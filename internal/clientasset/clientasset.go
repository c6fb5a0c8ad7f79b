// Package clientasset embeds the browser client contract's reference
// implementation so the broadcast server can serve it at GET /client.js
// without a separate build step (spec §4.8).
package clientasset

import _ "embed"

//go:embed client.js
var clientJS []byte

// JS returns the embedded client.js bundle.
func JS() []byte {
	return clientJS
}
