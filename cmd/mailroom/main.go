// Command mailroom is a terminal client for the mail API: it syncs the
// mailbox, pages through mail, manages flags and threads, and sends mail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/theme"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		kind := mailerr.Kind(err)
		label := string(kind)
		if label == "" || kind == mailerr.CategoryOther {
			label = "error"
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", theme.ErrorStyle(kind).Render(label+":"), err)
		os.Exit(1)
	}
}
