package main

import (
	"os"

	"github.com/open-webui/openwebui-cli/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
