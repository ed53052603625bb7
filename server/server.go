// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server runs the share custodian: an HTTP API over a custody store,
// plus a gRPC health service that tracks the store's sweeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/custody"
	glog "github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

const (
	shutdownTimeout = 5 * time.Second
	// limiterPruneInterval is how often idle rate limiter state is dropped.
	limiterPruneInterval = 10 * time.Minute
)

// Server is a custodian serving HTTP and gRPC.
type Server struct {
	store      *custody.Store
	httpAPI    *CustodyHTTPService
	health     *health.Server
	grpcServer *grpc.Server
}

// New creates a custodian for store. Serve starts it.
func New(store *custody.Store, cfg HTTPConfig) *Server {
	hs := NewHealthServer()
	return &Server{
		store:      store,
		httpAPI:    NewCustodyHTTPService(store, cfg),
		health:     hs,
		grpcServer: NewGRPCServer(hs),
	}
}

// Serve runs the HTTP API on httpLis, the gRPC services on grpcLis and the
// store's sweeper until ctx is done or either listener fails. It returns
// once everything has stopped.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Handler:           s.httpAPI.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open snapshot streams close on
		// shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 2)
	go func() {
		glog.Infof("HTTP API listening on %s", httpLis.Addr())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("serving HTTP: %w", err)
		}
	}()
	go func() {
		glog.Infof("gRPC listening on %s", grpcLis.Addr())
		if err := s.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("serving gRPC: %w", err)
		}
	}()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		RunSweeper(ctx, s.store, s.health)
	}()
	go s.pruneLimiter(ctx)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
		glog.Errorf("Shutting down: %v", err)
	}
	cancel()
	<-sweeperDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutting down HTTP: %w", shutdownErr)
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		// Open health Watch streams never end on their own.
		s.grpcServer.Stop()
	}
	return err
}

func (s *Server) pruneLimiter(ctx context.Context) {
	if s.httpAPI.limiter == nil {
		return
	}
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.httpAPI.limiter.prune(defaultMaxIdle)
		case <-ctx.Done():
			return
		}
	}
}
