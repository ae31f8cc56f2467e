// Package main is the entry point for loolbrokerd.
package main

import (
	"os"

	"github.com/stacklok/loolbrokerd/cmd/loolbrokerd/app"
	apperrors "github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/logger"
)

// Exit codes per spec.md §6/§7: 0 on clean shutdown, 64 (EX_USAGE) on any
// configuration error (started as root, conflicting port, missing required
// option, unusable cache directory), 70 (EX_SOFTWARE) on any other failure.
const (
	exitUsage    = 64
	exitSoftware = 70
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		if apperrors.IsConfiguration(err) {
			os.Exit(exitUsage)
		}
		os.Exit(exitSoftware)
	}
}
