// Command collab — консольный клиент рабочего пространства: лента канала в реальном времени,
// отправка сообщений, реакции и служебные команды.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/collab/internal/logger"
)

// Version подменяется при сборке через -ldflags.
var Version = "dev"

func main() {
	logger.SetPrefix("collab")
	defer logger.Sync()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd(Version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
