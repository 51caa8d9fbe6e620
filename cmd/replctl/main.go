// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/businessperformancetuning/repcontrol/config"
	"github.com/businessperformancetuning/repcontrol/control"
	"github.com/businessperformancetuning/repcontrol/util"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

func versionString() string {
	return "1.0.0"
}

func _main() error {
	cfg, args, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if cfg.ShowVersion {
		fmt.Println(versionString())
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("usage: replctl [flags] <metrics-config-path>")
	}
	if !util.FileExists(args[0]) {
		return fmt.Errorf("metrics configuration not found: %v", args[0])
	}
	metricsCfg, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("could not load metrics configuration: %w", err)
	}

	log.Infof("Version: %v", versionString())
	log.Infof("Save file: %v", metricsCfg.SavePath)

	if cfg.DumpConfig {
		return metricsCfg.Dump(os.Stdout)
	}

	if cfg.CheckOnly {
		ok, err := control.CheckSavedData(metricsCfg.SavePath, metricsCfg)
		if err != nil {
			return fmt.Errorf("check-only: %w", err)
		}
		if ok {
			log.Infof("save file already satisfies its confidence checks")
			return nil
		}
		return fmt.Errorf("save file does not yet satisfy its confidence checks")
	}

	if cfg.FileIn == "" || cfg.FileOut == "" {
		return fmt.Errorf("--filein and --fileout are required unless --check-only is set")
	}

	var eg errgroup.Group
	var srv *http.Server
	if cfg.Profile != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		srv = &http.Server{Addr: "127.0.0.1:" + cfg.Profile, Handler: mux}
		eg.Go(func() error {
			log.Infof("Profile server listening on %v", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	ctl := control.New(metricsCfg)
	loadErr := ctl.LoadData(cfg.FileIn, cfg.FileOut, cfg.OneMetric)

	traceLevel := log.Level() == slog.LevelTrace
	if cfg.Dump || traceLevel {
		if err := ctl.DumpDebug(os.Stdout, cfg.OutCL, cfg.OneMetric); err != nil {
			log.Warnf("dump: %v", err)
		}
	}
	if traceLevel {
		ctl.DumpRegistry(os.Stdout)
	}

	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Warnf("profile server shutdown: %v", err)
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return loadErr
}

func main() {
	if err := _main(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
