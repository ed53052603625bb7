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

// This binary is the main entrypoint for the SSDD command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"flag"
	"github.com/GoogleCloudPlatform/ssdd/client"
	"github.com/GoogleCloudPlatform/ssdd/config"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
)

const (
	// The default name for the SSDD configuration file.
	defaultConfigName string = "ssdd.yaml"

	// The suffix appended to the encrypted file name for its manifest.
	manifestSuffix string = ".manifest.yaml"

	// The current version, displayed via the `version` subcommand.
	ssddVersion string = "0.1.0"
)

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		glog.Errorf("Failed to get config directory location: %v", err.Error())
	}
	return filepath.Join(cfgDir, defaultConfigName)
}

// loadConfig reads path. A missing file at the default location yields the
// default configuration.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath() {
		glog.Infof("No config file at %s, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

// manifestPath picks the manifest location for an encrypted file.
func manifestPath(flagValue, encryptedFile string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if encryptedFile == "-" {
		return "", errors.New("--manifest is required when the encrypted file is stdin or stdout")
	}
	return encryptedFile + manifestSuffix, nil
}

func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}

func newClient(cfg *config.Config, custodianURL string) (*client.SsddClient, error) {
	custodian, err := client.NewCustodyClient(custodianURL)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Protocol.Policy()
	if err != nil {
		return nil, err
	}
	return client.NewSsddClient(custodian,
		client.WithCipher(cfg.Protocol.Cipher),
		client.WithFingerprintPolicy(policy),
		client.WithShareTTL(cfg.Custody.DefaultTTL()),
	)
}

// encryptCmd handles CLI options for the encryption command.
type encryptCmd struct {
	configFile   string
	blobID       string
	manifestFile string
	custodianURL string
	quiet        bool
}

// saveManifest writes manifest to w and closes it. If that fails the stored
// shares are discarded, since nothing could decrypt them.
func saveManifest(ctx context.Context, c *client.SsddClient, w io.WriteCloser, manifest *client.Manifest) error {
	err := client.WriteManifest(w, manifest)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		return nil
	}
	err = fmt.Errorf("error saving manifest: %w", err)
	if discardErr := c.Discard(ctx, manifest); discardErr != nil {
		return errors.Join(err, discardErr)
	}
	return err
}

func (*encryptCmd) Name() string { return "encrypt" }
func (*encryptCmd) Synopsis() string {
	return "encrypts plaintext and hands the key shares to a custodian"
}
func (*encryptCmd) Usage() string {
	return fmt.Sprintf(`Usage: ssdd encrypt [--config-file=<config_file>] [--blob-id=<blob_id>] [--manifest=<manifest_file>] [--custodian=<url>] <plaintext_file> <encrypted_file>

The shares needed to decrypt are listed in the manifest, which defaults to
<encrypted_file>%s. Decryption works only while the custodian still
holds enough of them.

Examples:
  Encrypt a file using SSDD, using %s for configuration:
    $ ssdd encrypt plaintext.txt ciphertext.bin

  Encrypt with the given blob ID and a specific configuration file:
    $ ssdd encrypt --config-file="my_config.yaml" --blob-id="foobar" plaintext.txt ciphertext.bin

  Encrypt with input from stdin and output to stdout:
    $ my-application | ssdd encrypt --manifest=blob.manifest.yaml - - > ciphertext.bin

Flags:
`, manifestSuffix, defaultConfigPath())
}
func (e *encryptCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&e.configFile, "config-file", defaultConfigPath(), "Path to an SSDD config YAML file. Optional.")
	f.StringVar(&e.blobID, "blob-id", "", "The blob ID to assign to the encrypted blob. Optional.")
	f.StringVar(&e.manifestFile, "manifest", "", "Where to write the share manifest. Optional unless writing to stdout.")
	f.StringVar(&e.custodianURL, "custodian", "", "Custodian URL, overriding client.custodianUrl. Optional.")
	f.BoolVar(&e.quiet, "quiet", false, "Suppress logging output.")
}

func (e *encryptCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(e.configFile)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err.Error())
		return subcommands.ExitFailure
	}

	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected plaintext file and encrypted file)")
		return subcommands.ExitFailure
	}

	mPath, err := manifestPath(e.manifestFile, f.Arg(1))
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	custodianURL := cfg.Client.CustodianURL
	if e.custodianURL != "" {
		custodianURL = e.custodianURL
	}
	c, err := newClient(cfg, custodianURL)
	if err != nil {
		glog.Errorf("Failed to create client: %v", err.Error())
		return subcommands.ExitFailure
	}

	inFile, err := openInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to open plaintext file: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer inFile.Close()

	var outFile *os.File
	var logFile *os.File

	if f.Arg(1) == "-" {
		outFile = os.Stdout
		logFile = os.Stderr
	} else {
		outFile, err = os.Create(f.Arg(1))
		if err != nil {
			glog.Errorf("Failed to open file for encrypted data: %v", err.Error())
			return subcommands.ExitFailure
		}
		defer outFile.Close()

		logFile = os.Stdout
	}

	// Shares are useless without their manifest, so the file is opened before
	// any share is stored.
	mFile, err := os.OpenFile(mPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		glog.Errorf("Failed to create manifest file: %v", err.Error())
		return subcommands.ExitFailure
	}

	manifest, err := c.Encrypt(ctx, inFile, outFile, cfg.Protocol.Shares, cfg.Protocol.Threshold, e.blobID)
	if err != nil {
		mFile.Close()
		os.Remove(mPath)
		glog.Errorf("Failed to encrypt plaintext: %v", err.Error())
		return subcommands.ExitFailure
	}

	if err := saveManifest(ctx, c, mFile, manifest); err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	if !e.quiet {
		logFile.WriteString(fmt.Sprintln("Wrote encrypted data to", outFile.Name()))
		logFile.WriteString(fmt.Sprintln("Wrote share manifest to", mPath))
		logFile.WriteString(fmt.Sprintln("Blob ID of encrypted data:", manifest.BlobID))
		logFile.WriteString(fmt.Sprintf("Stored %d shares with %s, %d needed, expiring in %v\n",
			len(manifest.Shares), manifest.CustodianURL, manifest.Threshold, cfg.Custody.DefaultTTL()))
	}

	return subcommands.ExitSuccess
}

// decryptCmd handles CLI options for the decryption command.
type decryptCmd struct {
	configFile   string
	blobID       string
	manifestFile string
	custodianURL string
	quiet        bool
}

func (*decryptCmd) Name() string { return "decrypt" }
func (*decryptCmd) Synopsis() string {
	return "decrypts a blob while its custodian still holds enough shares"
}
func (*decryptCmd) Usage() string {
	return fmt.Sprintf(`Usage: ssdd decrypt [--config-file=<config_file>] [--blob-id=<blob_id>] [--manifest=<manifest_file>] [--custodian=<url>] <encrypted_file> <plaintext_file>

Example:
  Decrypt a file using SSDD, using %s for configuration:
    $ ssdd decrypt ciphertext.bin plaintext.txt
    Wrote plaintext to plaintext.txt
    Blob ID of decrypted data: ...

  Decrypt with input from stdin and output to stdout:
    $ cat ciphertext.bin | ssdd decrypt --manifest=blob.manifest.yaml - - | my-other-application

Flags:
`, defaultConfigPath())
}
func (d *decryptCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.configFile, "config-file", defaultConfigPath(), "Path to an SSDD config YAML file. Optional.")
	f.StringVar(&d.blobID, "blob-id", "", "The blob ID to validate the decryption against. Optional.")
	f.StringVar(&d.manifestFile, "manifest", "", "Share manifest written by encrypt. Optional unless reading from stdin.")
	f.StringVar(&d.custodianURL, "custodian", "", "Custodian URL, overriding the manifest. Optional.")
	f.BoolVar(&d.quiet, "quiet", false, "Suppress logging output.")
}

func (d *decryptCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(d.configFile)
	if err != nil {
		glog.Errorf("Failed to load config: %v", err.Error())
		return subcommands.ExitFailure
	}

	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected encrypted file and plaintext file)")
		return subcommands.ExitFailure
	}

	mPath, err := manifestPath(d.manifestFile, f.Arg(0))
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}
	mFile, err := os.Open(mPath)
	if err != nil {
		glog.Errorf("Failed to open manifest file: %v", err.Error())
		return subcommands.ExitFailure
	}
	manifest, err := client.ReadManifest(mFile)
	mFile.Close()
	if err != nil {
		glog.Errorf("%v", err)
		return subcommands.ExitFailure
	}

	if d.blobID != "" && d.blobID != manifest.BlobID {
		glog.Errorf("Manifest is for blob %q, expected %q", manifest.BlobID, d.blobID)
		return subcommands.ExitFailure
	}

	custodianURL := manifest.CustodianURL
	if d.custodianURL != "" {
		custodianURL = d.custodianURL
	}
	c, err := newClient(cfg, custodianURL)
	if err != nil {
		glog.Errorf("Failed to create client: %v", err.Error())
		return subcommands.ExitFailure
	}

	inFile, err := openInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to open ciphertext file: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer inFile.Close()

	var outFile *os.File
	var logFile *os.File

	if f.Arg(1) == "-" {
		// Output to stdout and log to stderr.
		outFile = os.Stdout
		logFile = os.Stderr
	} else {
		outFile, err = os.Create(f.Arg(1))
		if err != nil {
			glog.Errorf("Failed to open file for plaintext: %v", err.Error())
			return subcommands.ExitFailure
		}
		defer outFile.Close()

		logFile = os.Stdout
	}

	md, err := c.Decrypt(ctx, inFile, outFile, manifest)
	if err != nil {
		glog.Errorf("Failed to decrypt ciphertext: %v", err.Error())
		return subcommands.ExitFailure
	}

	if !d.quiet {
		logFile.WriteString(fmt.Sprintln("Wrote plaintext to", outFile.Name()))
		logFile.WriteString(fmt.Sprintln("Blob ID of decrypted data:", md.BlobID))
		logFile.WriteString(fmt.Sprintln("Shares used:", md.SharesUsed))
	}

	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: ssdd version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("SSDD Version %s\n", ssddVersion)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&encryptCmd{}, "")
	subcommands.Register(&decryptCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
