package main

import (
	"github.com/robotalks/pwmlink/pkg/cli/sh"

	_ "github.com/robotalks/pwmlink/pkg/cli/cmds/servo"
)

//go-build: CGO_ENABLED=0

func init() {
	sh.SetupFlags()
}

func main() {
	sh.Main()
}
