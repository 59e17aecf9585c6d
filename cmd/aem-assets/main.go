package main

import (
	"os"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/cli"
)

func main() {
	os.Exit(cli.ExecuteWithErrorCode(os.Args[1:]))
}
