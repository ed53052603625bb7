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

// Share custodian binary.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"flag"
	"github.com/GoogleCloudPlatform/ssdd/config"
	"github.com/GoogleCloudPlatform/ssdd/custody"
	"github.com/GoogleCloudPlatform/ssdd/server"
	glog "github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	configFile  = flag.String("config-file", "", "Path to an SSDD config YAML file. Defaults are used if empty.")
	httpAddress = flag.String("http-address", "", "HTTP listen address, overriding server.httpAddress")
	grpcPort    = flag.Int("grpc-port", 0, "gRPC health service port, overriding server.grpcPort")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *httpAddress != "" {
		cfg.Server.HTTPAddress = *httpAddress
	}
	if *grpcPort != 0 {
		cfg.Server.GRPCPort = *grpcPort
	}
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		glog.Fatalf("Invalid configuration: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := custody.NewStore(
		custody.WithSweepInterval(cfg.Custody.SweepInterval()),
		custody.WithMetrics(custody.NewMetrics(reg)),
	)
	srv := server.New(store, server.HTTPConfig{
		DefaultTTL:            cfg.Custody.DefaultTTL(),
		RetrieveRatePerMinute: cfg.Server.RetrieveRatePerMinute,
		RetrieveBurst:         cfg.Server.RetrieveBurst,
		Gatherer:              reg,
	})

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddress)
	if err != nil {
		glog.Fatalf("failed to listen: %v", err)
	}
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		glog.Fatalf("failed to listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	glog.Infof("Starting share custodian, default TTL %v, sweep every %v.", cfg.Custody.DefaultTTL(), cfg.Custody.SweepInterval())
	if err := srv.Serve(ctx, httpLis, grpcLis); err != nil {
		glog.Fatalf("Custodian stopped: %v", err)
	}
	glog.Infof("Custodian stopped.")
}
