/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supercluster/sequence-archiver/config"
)

func TestEnvVarOverridesDefaultConfigPath(t *testing.T) {
	const (
		outputFileName = "output.toml"
		customConfig   = `
[download]
  sequences_limit = 25

[index]
  host = "https://es.example.com"
  password = "secret"
`
	)

	tempDir := t.TempDir()
	configPath := writeTestConfig(t, tempDir, customConfig)

	t.Setenv(envConfig, configPath)

	outputPath := filepath.Join(tempDir, outputFileName)
	outputFile, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("failed to create output file: %v", err)
	}
	defer outputFile.Close()

	oldStdout := os.Stdout
	os.Stdout = outputFile
	defer func() { os.Stdout = oldStdout }()

	app := buildApp()
	args := []string{"sequence-archiver", "config", "dump"}
	if err := app.Run(context.Background(), args); err != nil {
		t.Fatalf("failed to run config dump: %v", err)
	}

	cfg, err := config.NewConfigFromToml(outputPath)
	if err != nil {
		t.Fatalf("failed to load config from output: %v", err)
	}
	if cfg.DownloadConfig.SequencesLimit != 25 {
		t.Errorf("expected sequences_limit 25, got %d", cfg.DownloadConfig.SequencesLimit)
	}
	if cfg.IndexConfig.Host != "https://es.example.com" {
		t.Errorf("expected index host to survive the dump, got %q", cfg.IndexConfig.Host)
	}
	if cfg.IndexConfig.Password != redacted {
		t.Errorf("expected the index password to be redacted, got %q", cfg.IndexConfig.Password)
	}
}

func TestEnvVarOverridesDefaultLogLevel(t *testing.T) {
	const newLogLevel = logrus.DebugLevel

	es := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer es.Close()

	tempDir := t.TempDir()
	configPath := writeTestConfig(t, tempDir, `
[index]
  host = "`+es.URL+`"
`)

	originalLevel := logrus.GetLevel()
	defer logrus.SetLevel(originalLevel)

	t.Setenv(envConfig, configPath)
	t.Setenv(envLogLevel, newLogLevel.String())
	t.Setenv(envAddress, "127.0.0.1:0")

	app := buildApp()
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx, []string{"sequence-archiver"})
	}()

	time.Sleep(100 * time.Millisecond)

	if actualLevel := logrus.GetLevel(); actualLevel != newLogLevel {
		t.Errorf("expected log level: %s, got: %s", newLogLevel, actualLevel)
	}
	if err := <-done; err != nil {
		t.Errorf("expected a clean shutdown, got %v", err)
	}
}

func TestListen(t *testing.T) {
	tests := []struct {
		name    string
		address string
		network string
	}{
		{name: "bare tcp", address: "127.0.0.1:0", network: "tcp"},
		{name: "tcp", address: "tcp://127.0.0.1:0", network: "tcp"},
		{name: "unix", address: "unix://" + filepath.Join(t.TempDir(), "run", "api.sock"), network: "unix"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := listen(context.Background(), tc.address)
			if err != nil {
				t.Fatalf("listen %q: %v", tc.address, err)
			}
			defer l.Close()
			if got := l.Addr().Network(); got != tc.network {
				t.Fatalf("expected network %s, got %s", tc.network, got)
			}
		})
	}

	if _, err := listen(context.Background(), "udp://127.0.0.1:0"); err == nil {
		t.Fatal("expected unknown protocol to fail")
	}
}

func TestNewHandlerRequiresIndexHost(t *testing.T) {
	if _, err := newHandler(context.Background(), config.NewConfig()); err == nil {
		t.Fatal("expected an error without an index host")
	}
}

func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}
