package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/G-Research/indexq/internal/common/indexqcontext"
)

// CreateContextWithShutdown returns a context that is cancelled when SIGINT or SIGTERM is received
func CreateContextWithShutdown() *indexqcontext.Context {
	ctx, cancel := indexqcontext.WithCancel(indexqcontext.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			ctx.Log.Infof("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
