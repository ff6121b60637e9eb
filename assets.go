package praxisbridge

import (
	"embed"
	"io/fs"
)

// The embedded asset bundle: the bootstrap program, the standard shims, and
// the optional packages available to INSTALL. WithAssets replaces it.
//
//go:embed assets
var embeddedAssets embed.FS

func defaultAssets() fs.FS {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		// The directory is embedded at build time; Sub cannot fail on it.
		panic(err)
	}
	return sub
}
