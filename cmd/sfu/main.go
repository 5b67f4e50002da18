/*
Copyright 2022 The Matrix.org Foundation C.I.C.

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
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pionsfu/forwarder/internal/config"
	"github.com/pionsfu/forwarder/internal/sfu"
	"github.com/pionsfu/forwarder/internal/signalling"
	"github.com/pionsfu/forwarder/pkg/profiling"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Define functions that are called before exiting.
	// This is useful to stop the profiler if it's enabled.
	deferredFunctions := []func(){}
	if *cpuProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitCPUProfiling(cpuProfile))
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitMemoryProfiling(memProfile))
	}

	// Handle signal interruptions.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		for _, function := range deferredFunctions {
			function()
		}
		os.Exit(0)
	}()

	// Load the config file from the environment variable or path.
	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.WithError(err).Warn("invalid log level, defaulting to info")
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(level)
	}

	if cfg.Telemetry.JaegerURL != "" {
		if _, err := sfu.SetupTelemetry(cfg.Telemetry); err != nil {
			logrus.WithError(err).Error("failed to set up telemetry, continuing without it")
		}
	}

	var metrics *sfu.Metrics
	if cfg.MetricsAddress != "" {
		metrics, err = sfu.NewMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			logrus.WithError(err).Fatal("could not register metrics")
			return
		}

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logrus.WithField("address", cfg.MetricsAddress).Info("serving metrics")
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logrus.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	hub := signalling.NewHub(cfg.Media, metrics)
	server := signalling.NewServer(hub, cfg.Transport)

	mux := http.NewServeMux()
	mux.Handle("/signalling", server)

	logrus.WithField("address", cfg.ListenAddress).Info("starting sfu")
	if err := http.ListenAndServe(cfg.ListenAddress, mux); err != nil {
		logrus.WithError(err).Fatal("signalling server stopped")
	}
}
