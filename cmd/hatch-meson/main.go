// Command hatch-meson builds meson projects for the hatch-meson
// packaging plugin.
package main

import "github.com/virtuald/hatch-meson/cmd/hatch-meson/internal"

func main() {
	internal.Execute()
}
