// Package main is the entry point for the m3u-proxy application.
package main

import (
	"os"

	"github.com/jmylchreest/m3u-proxy/cmd/m3u-proxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
