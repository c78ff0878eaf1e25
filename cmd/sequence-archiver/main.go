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
	"errors"
	"fmt"
	golog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	_ "net/http/pprof"

	"github.com/containerd/log"
	"github.com/coreos/go-systemd/v22/activation"
	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	gometrics "github.com/docker/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/supercluster/sequence-archiver/archive"
	"github.com/supercluster/sequence-archiver/config"
	"github.com/supercluster/sequence-archiver/download"
	"github.com/supercluster/sequence-archiver/drs"
	"github.com/supercluster/sequence-archiver/index"
	archiverhttp "github.com/supercluster/sequence-archiver/internal/http"
	"github.com/supercluster/sequence-archiver/metrics"
	"github.com/supercluster/sequence-archiver/service"
	"github.com/supercluster/sequence-archiver/tracing"
	"github.com/supercluster/sequence-archiver/version"
	"github.com/urfave/cli/v3"
	"golang.org/x/sys/unix"
)

const (
	defaultLogLevel = logrus.InfoLevel
	shutdownTimeout = 30 * time.Second

	envConfig   = "SEQUENCE_ARCHIVER_CONFIG"
	envLogLevel = "SEQUENCE_ARCHIVER_LOG_LEVEL"
	envAddress  = "SEQUENCE_ARCHIVER_ADDRESS"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	if err := buildApp().Run(ctx, os.Args); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "sequence-archiver: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// logLevel of Debug or Trace may emit sensitive information
// e.g. sequence ids, object urls and network addresses
func buildApp() *cli.Command {
	return &cli.Command{
		Name:    "sequence-archiver",
		Usage:   "serve sequence files as zip archives",
		Version: fmt.Sprintf("%s %s", version.Version, version.Revision),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the configuration file",
				Value:   config.DefaultConfigPath,
				Sources: cli.EnvVars(envConfig),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the logging level [trace, debug, info, warn, error, fatal, panic]",
				Value:   defaultLogLevel.String(),
				Sources: cli.EnvVars(envLogLevel),
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "address for the download API, overrides the configuration file. Supports tcp, unix:// and fd://",
				Sources: cli.EnvVars(envAddress),
			},
		},
		Commands: []*cli.Command{ConfigCommand},
		Action:   run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	lvl, err := logrus.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to prepare logger: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: log.RFC3339NanoFixed,
	})

	ctx = log.WithLogger(ctx, log.L)
	// Streams log of standard lib (net/http server errors) into debug log
	golog.SetOutput(log.G(ctx).WriterLevel(logrus.DebugLevel))
	log.G(ctx).WithFields(logrus.Fields{
		"version":  version.Version,
		"revision": version.Revision,
	}).Info("starting sequence-archiver")

	cfg, err := config.NewConfigFromToml(cmd.String("config"))
	if err != nil {
		return err
	}
	if addr := cmd.String("address"); addr != "" {
		cfg.Address = addr
	}

	disabled, err := tracing.IsDisabled()
	if err != nil {
		log.G(ctx).WithError(err).Warn("tracing configuration is invalid, tracing disabled")
	}
	if !disabled {
		shutdown, err := tracing.Init(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.G(ctx).WithError(err).Warn("failed to flush traces")
			}
		}()
		log.G(ctx).Debug("tracing enabled")
	}

	handler, err := newHandler(ctx, cfg)
	if err != nil {
		return err
	}
	return serve(ctx, handler, *cfg)
}

func newHandler(ctx context.Context, cfg *config.Config) (http.Handler, error) {
	client := archiverhttp.NewRetryableClient(cfg.RetryableHTTPClientConfig)

	es, err := index.NewElasticsearch(cfg.IndexConfig, client)
	if err != nil {
		return nil, fmt.Errorf("failed to configure sequence index: %w", err)
	}
	if err := es.Ping(ctx); err != nil {
		log.G(ctx).WithError(err).Warn("sequence index is not reachable yet")
	}

	coordinator := download.NewCoordinator(es, drs.NewClient(cfg.DRSConfig, client), cfg.DownloadConfig)

	var archiveOpts []archive.Option
	if cfg.DownloadConfig.FlushEntries {
		archiveOpts = append(archiveOpts, archive.WithFlushInterval(1))
	}
	return service.NewHandler(coordinator, service.WithArchiveOptions(archiveOpts...)), nil
}

func serve(ctx context.Context, handler http.Handler, cfg config.Config) error {
	errCh := make(chan error, 1)

	var cleanupFns []func() error
	defer func() {
		for _, cleanupFn := range cleanupFns {
			cleanupFn()
		}
	}()

	// We need to consider both the existence of MetricsAddress as well as NoPrometheus flag not set
	if cfg.MetricsAddress != "" && !cfg.NoPrometheus {
		metrics.Register()
		var l net.Listener
		var err error
		if cfg.MetricsNetwork == "unix" {
			l, err = listenUnix(cfg.MetricsAddress)
		} else {
			l, err = net.Listen(cfg.MetricsNetwork, cfg.MetricsAddress)
		}
		if err != nil {
			return fmt.Errorf("failed to get listener for metrics endpoint: %w", err)
		}
		cleanupFns = append(cleanupFns, l.Close)
		m := http.NewServeMux()
		m.Handle("/metrics", gometrics.Handler())
		go func() {
			if err := http.Serve(l, m); err != nil && !errors.Is(err, net.ErrClosed) {
				errCh <- fmt.Errorf("error on serving metrics via socket %q: %w", cfg.MetricsAddress, err)
			}
		}()
	}

	if cfg.DebugAddress != "" {
		log.G(ctx).Infof("listen %q for debugging", cfg.DebugAddress)
		go func() {
			if err := http.ListenAndServe(cfg.DebugAddress, nil); err != nil {
				errCh <- fmt.Errorf("error on serving a debug endpoint via socket %q: %w", cfg.DebugAddress, err)
			}
		}()
	}

	l, err := listen(ctx, cfg.Address)
	if err != nil {
		return fmt.Errorf("error on listen socket %q: %w", cfg.Address, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          golog.New(log.G(ctx).WriterLevel(logrus.DebugLevel), "", 0),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("error on serving via socket %q: %w", cfg.Address, err)
		}
	}()

	if os.Getenv("NOTIFY_SOCKET") != "" {
		notified, notifyErr := sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
		log.G(ctx).Debugf("SdNotifyReady notified=%v, err=%v", notified, notifyErr)
	}
	defer func() {
		if os.Getenv("NOTIFY_SOCKET") != "" {
			notified, notifyErr := sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
			log.G(ctx).Debugf("SdNotifyStopping notified=%v, err=%v", notified, notifyErr)
		}
	}()

	log.G(ctx).WithField("address", cfg.Address).Info("sequence-archiver successfully started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case s := <-sigCh:
		log.G(ctx).Infof("Got %v", s)
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// In-flight archives get a grace period to finish streaming.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.G(ctx).WithError(err).Warn("forcing shutdown")
		srv.Close()
	}
	log.G(ctx).Info("Exiting")
	return nil
}

func listen(ctx context.Context, address string) (net.Listener, error) {
	protocol, addr, found := strings.Cut(address, "://")
	if !found {
		// The address doesn't start with a protocol, assume it's a tcp address
		protocol = "tcp"
		addr = address
	}
	switch protocol {
	case "tcp":
		return net.Listen("tcp", addr)
	case "unix":
		return listenUnix(addr)
	case "fd":
		return listenFd(ctx)
	default:
		return nil, fmt.Errorf("unknown protocol for address %s", address)
	}
}

func listenUnix(addr string) (net.Listener, error) {
	// Prepare the directory for the socket
	if err := os.MkdirAll(filepath.Dir(addr), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %q: %w", filepath.Dir(addr), err)
	}

	// Try to remove the socket file to avoid EADDRINUSE
	if err := os.RemoveAll(addr); err != nil {
		return nil, fmt.Errorf("failed to remove %q: %w", addr, err)
	}
	return net.Listen("unix", addr)
}

func listenFd(ctx context.Context) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, err
	}
	if len(listeners) == 0 {
		log.G(ctx).Info("Address was set to listen on a file descriptor, but no file descriptors were passed. Perhaps sequence-archiver was launched directly without using systemd socket activation?")
		log.G(ctx).Info("Listening on the default address")
		return net.Listen("tcp", config.NewConfig().Address)
	}
	if len(listeners) > 1 {
		for _, socket := range listeners {
			socket.Close()
		}
		return nil, errors.New("sequence-archiver only supports a single systemd socket on activation")
	}
	return listeners[0], nil
}
