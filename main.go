package main

import (
	"github.com/email-assistant-core/server/cmd"
)

// version will be set by the release build
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
