package main

import (
	"github.com/pattisdr/osf.io/cmd"
)

func main() {
	cmd.Execute()
}
