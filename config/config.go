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

// Package config loads SSDD configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/protocol"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/shamir"
	"sigs.k8s.io/yaml"
)

// Config is the root of an SSDD configuration file.
type Config struct {
	Protocol ProtocolConfig `json:"protocol"`
	Custody  CustodyConfig  `json:"custody"`
	Server   ServerConfig   `json:"server"`
	Client   ClientConfig   `json:"client"`
}

// ProtocolConfig controls how secrets are split and checked.
type ProtocolConfig struct {
	Shares            int    `json:"shares"`
	Threshold         int    `json:"threshold"`
	Cipher            string `json:"cipher"`
	FingerprintPolicy string `json:"fingerprintPolicy"`
}

// CustodyConfig controls the custodian's store.
type CustodyConfig struct {
	DefaultTTLSeconds    int `json:"defaultTTLSeconds"`
	SweepIntervalSeconds int `json:"sweepIntervalSeconds"`
}

// ServerConfig controls the custodian's listeners.
type ServerConfig struct {
	HTTPAddress string `json:"httpAddress"`
	GRPCPort    int    `json:"grpcPort"`
	// RetrieveRatePerMinute limits share reads per client. Zero disables it.
	RetrieveRatePerMinute int `json:"retrieveRatePerMinute"`
	RetrieveBurst         int `json:"retrieveBurst"`
}

// ClientConfig controls the CLI.
type ClientConfig struct {
	CustodianURL string `json:"custodianUrl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			Shares:            constants.DefaultShares,
			Threshold:         constants.DefaultThreshold,
			Cipher:            protocol.CipherCBC,
			FingerprintPolicy: protocol.FingerprintLegacy.String(),
		},
		Custody: CustodyConfig{
			DefaultTTLSeconds:    int(constants.DefaultShareTTL / time.Second),
			SweepIntervalSeconds: int(constants.SweepInterval / time.Second),
		},
		Server: ServerConfig{
			HTTPAddress:           fmt.Sprintf(":%d", constants.HTTPPort),
			GRPCPort:              constants.GrpcPort,
			RetrieveRatePerMinute: 60,
			RetrieveBurst:         10,
		},
		Client: ClientConfig{
			CustodianURL: fmt.Sprintf("http://localhost:%d", constants.HTTPPort),
		},
	}
}

// Parse reads YAML over the defaults and validates the result. Unknown fields
// are rejected.
func Parse(yamlBytes []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(yamlBytes, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(yamlBytes)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	p := c.Protocol
	if p.Threshold < constants.MinThreshold {
		errs = append(errs, fmt.Errorf("protocol.threshold %d is below %d", p.Threshold, constants.MinThreshold))
	}
	if p.Shares < p.Threshold || p.Shares > shamir.MaxShares {
		errs = append(errs, fmt.Errorf("protocol.shares %d must be between protocol.threshold (%d) and %d", p.Shares, p.Threshold, shamir.MaxShares))
	}
	if _, err := protocol.CipherByName(p.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("protocol.cipher: %w", err))
	}
	if _, err := protocol.ParseFingerprintPolicy(p.FingerprintPolicy); err != nil {
		errs = append(errs, fmt.Errorf("protocol.fingerprintPolicy: %w", err))
	}

	if c.Custody.DefaultTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("custody.defaultTTLSeconds %d must be positive", c.Custody.DefaultTTLSeconds))
	}
	if c.Custody.SweepIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("custody.sweepIntervalSeconds %d must be positive", c.Custody.SweepIntervalSeconds))
	}

	if c.Server.HTTPAddress == "" {
		errs = append(errs, errors.New("server.httpAddress is empty"))
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpcPort %d is not a valid port", c.Server.GRPCPort))
	}
	if c.Server.RetrieveRatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.retrieveRatePerMinute %d is negative", c.Server.RetrieveRatePerMinute))
	}
	if c.Server.RetrieveBurst < 0 {
		errs = append(errs, fmt.Errorf("server.retrieveBurst %d is negative", c.Server.RetrieveBurst))
	}

	if c.Client.CustodianURL != "" {
		if u, err := url.Parse(c.Client.CustodianURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("client.custodianUrl %q must be an http or https URL", c.Client.CustodianURL))
		}
	}
	return errors.Join(errs...)
}

// Policy returns the parsed fingerprint policy.
func (p ProtocolConfig) Policy() (protocol.FingerprintPolicy, error) {
	return protocol.ParseFingerprintPolicy(p.FingerprintPolicy)
}

// DefaultTTL returns DefaultTTLSeconds as a duration.
func (c CustodyConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// SweepInterval returns SweepIntervalSeconds as a duration.
func (c CustodyConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
