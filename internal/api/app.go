package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunServer serves h on port. This is a blocking call.
func RunServer(port int, h *Handler) error {
	srv := newServer(port, h)
	log.Infof("entitled listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

// RunServerInterruptible runs the server in the background in a Go routine and immediately returns a chan to
// the caller. The caller can then send a signal to the chan to gracefully shutdown the server.
// It's up to the caller to wait for in the main Go routine to keep the server running.
func RunServerInterruptible(port int, h *Handler) (stop chan<- struct{}, done <-chan error) {
	srv := newServer(port, h)

	// one-shot channels for control & completion
	stopCh := make(chan struct{})
	doneCh := make(chan error, 1)

	go func() {
		log.Infof("entitled listening on %s", srv.Addr)
		err := srv.ListenAndServe()
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneCh <- err
			return
		}
		doneCh <- nil
	}()

	go func() {
		<-stopCh
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) // in-flight requests get time to finish
	}()
	return stopCh, doneCh
}

func newServer(port int, h *Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
