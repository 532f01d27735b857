package cmd

import (
	"fmt"
	"runtime"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X github.com/hamzamsaid/hamzawi/cmd.Version=v1.0.0"
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// runVersion displays version information.
func runVersion() {
	fmt.Printf("Hamzawi %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
