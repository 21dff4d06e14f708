package main

import (
	"os"

	"github.com/xldeploy/terraform-provider-xldeploy/cmd/xldctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
