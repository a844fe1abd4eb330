package main

import (
	"context"
	"fmt"
	"os"
	"review-proxy/internal/cli"
)

// version 由构建时 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
