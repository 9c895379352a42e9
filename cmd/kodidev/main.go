// Kodidev - run Kodi addons outside of Kodi
//
// Kodidev resolves a video plugin addon and its dependencies from the
// official mirrors and runs it in a sandboxed worker process, rendering
// its directory listings on the terminal.
package main

import (
	"github.com/kodidev/kodidev/internal/cli"
)

func main() {
	cli.Execute()
}
