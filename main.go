// The main package for the harvester executable.
package main

import (
	"github.com/joblens/harvester/cmd"
)

func main() {
	cmd.Execute()
}
