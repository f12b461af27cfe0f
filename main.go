// The main package for the hivefetch executable.
package main

import (
	"github.com/hivefetch/hivefetch/cmd"
)

func main() {
	cmd.Execute()
}
