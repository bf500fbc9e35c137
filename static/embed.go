// Package static embeds the client-side scripts served by the dev server.
package static

import (
	"embed"
	"io/fs"
)

// LiveReloadScript is the embedded path of the live reload client.
const LiveReloadScript = "js/livereload.js"

//go:embed js/*.js
var assets embed.FS

// FS exposes the embedded static assets.
func FS() fs.FS {
	return assets
}
