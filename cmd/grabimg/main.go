package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xucian/grabimg/pkg/config"
	"github.com/xucian/grabimg/pkg/fetch"
	"github.com/xucian/grabimg/pkg/grab"
	pkglog "github.com/xucian/grabimg/pkg/log"
)

const version = "0.3.0"

func main() {
	configFileFlag := flag.String("config", "", "Path to YAML config file (defaults are used when empty)")
	logLevelFlag := flag.String("loglevel", "info", "Log level (debug, info, warn, error)")
	logFormatFlag := flag.String("logformat", pkglog.FormatText, "Log format (text, json)")
	timeoutFlag := flag.Duration("timeout", 0, "Overall deadline for the whole batch (0 disables)")
	outDirFlag := flag.String("out", "", "Directory to save fetched images as PNG (empty to skip saving)")
	fitFlag := flag.String("fit", "", "Downscale saved images to fit within WxH, e.g. 800x600")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("grabimg version %s\n", version)
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		printUsage()
		os.Exit(2)
	}

	logger, err := pkglog.New(os.Stderr, *logLevelFlag, *logFormatFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	log := logrus.NewEntry(logger)

	fit, err := parseFit(*fitFlag)
	if err != nil {
		log.Fatalf("Invalid -fit: %v", err)
	}

	// --- Configuration ---
	cfg := config.Default()
	if *configFileFlag != "" {
		log.Infof("Loading configuration from %s", *configFileFlag)
		var warnings []string
		cfg, warnings, err = config.Load(*configFileFlag)
		if err != nil {
			log.Fatalf("Configuration error: %v", err)
		}
		for _, w := range warnings {
			log.Warn(w)
		}
	}
	logConfig(cfg, log)

	// --- Context & Signal Handling ---
	var ctx context.Context
	var cancel context.CancelFunc
	if *timeoutFlag > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), *timeoutFlag)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Cancelling outstanding fetches...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(10 * time.Second):
			log.Warn("Shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	defer signal.Stop(sigChan)

	// --- Components ---
	grabber, err := grab.New(cfg, nil, log.WithField("component", "grab"))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	hostPool := fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, log.WithField("component", "host_pool"))
	go hostPool.RunEviction(ctx, time.Minute)

	b := &batch{
		fetcher:     grabber,
		hosts:       hostPool,
		concurrency: cfg.Concurrency,
		outDir:      *outDirFlag,
		fit:         fit,
		log:         log,
	}

	start := time.Now()
	results := b.Run(ctx, urls)
	misses := printResults(os.Stdout, results)

	log.Infof("Processed %d URL(s) in %v: %d image(s), %d miss(es)",
		len(results), time.Since(start).Round(time.Millisecond), len(results)-misses, misses)
	if ctx.Err() != nil {
		log.Warnf("Batch interrupted: %v", ctx.Err())
	}
	if misses > 0 {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `grabimg - fetch the representative image of each URL

Usage:
  grabimg [flags] <url> [url...]

Each URL may point at an image or at an HTML page; for pages, the Open Graph
image (or the first <img>) is fetched instead.

Flags:
`)
	flag.PrintDefaults()
}

// logConfig logs the effective configuration
func logConfig(cfg config.Config, log *logrus.Entry) {
	log.Infof("Config: Concurrency:%d, MaxReqPerHost:%d, AutoOrient:%t",
		cfg.Concurrency, cfg.MaxRequestsPerHost, cfg.EffectiveAutoOrient())
	log.Infof("Config Limits: MaxImage:%d bytes, MaxHTML:%d bytes",
		cfg.MaxImageSizeBytes, cfg.MaxHTMLSizeBytes)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, MaxRedirects:%d",
		cfg.HTTPClientSettings.Timeout, cfg.HTTPClientSettings.MaxIdleConns, cfg.HTTPClientSettings.MaxIdleConnsPerHost,
		cfg.HTTPClientSettings.IdleConnTimeout, cfg.HTTPClientSettings.TLSHandshakeTimeout, cfg.HTTPClientSettings.MaxRedirects)
}
