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

package server

import (
	"context"

	"github.com/GoogleCloudPlatform/ssdd/custody"
	glog "github.com/golang/glog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the service reported by the gRPC health server.
const HealthServiceName = "ssdd.Custodian"

// NewHealthServer returns a health server reporting NOT_SERVING until
// RunSweeper starts.
func NewHealthServer() *health.Server {
	hs := health.NewServer()
	setServingStatus(hs, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

func setServingStatus(hs *health.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", status)
	hs.SetServingStatus(HealthServiceName, status)
}

// NewGRPCServer creates a gRPC server carrying the health service and
// reflection.
func NewGRPCServer(hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}

// RunSweeper runs the store's sweeper until ctx is done. The custodian is
// reported SERVING for exactly that long.
func RunSweeper(ctx context.Context, store *custody.Store, hs *health.Server) {
	setServingStatus(hs, healthpb.HealthCheckResponse_SERVING)
	glog.Infof("Share sweeper started")

	store.Run(ctx)

	setServingStatus(hs, healthpb.HealthCheckResponse_NOT_SERVING)
	glog.Infof("Share sweeper stopped")
}
