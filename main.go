// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/dialtone/cmd"
)

// main is the entry point when the module root is built directly; it
// behaves like cmd/dialtone.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
