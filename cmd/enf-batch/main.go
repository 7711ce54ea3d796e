package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/calvan/enf-analysis/pkg/config"
	"github.com/calvan/enf-analysis/pkg/pipeline"
	"github.com/calvan/enf-analysis/pkg/storage"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
)

// enf-batch repeats the ENF analysis of the video datasets stored by
// enf-analysis, for example with other bandpass or STFT parameters.
func main() {
	os.Exit(run())
}

// run returns the exit code; everything deferred in it runs before exiting.
func run() int {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	cfg := config.Default()
	cfg.FlushENFData = true
	cfg.RegisterFlags(pflag.CommandLine)
	configPath := pflag.String("config", "", "a YAML file with the analysis parameters; explicit flags take precedence")
	datasets := pflag.Int64Slice("dataset", nil, "IDs of the video datasets to analyze; all of them by default")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *configPath != "" {
		assertNoError(cfg.LoadFile(*configPath, pflag.CommandLine))
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	store, err := storage.Open(ctx, cfg.StoragePath)
	assertNoError(err)
	defer store.Close()

	p, err := pipeline.New(cfg, store)
	assertNoError(err)
	logger.Infof(ctx, "starting run %s...", p.RunID)

	results, runErr := p.RunDatasets(ctx, *datasets)

	wc := datacounter.NewWriterCounter(os.Stdout)
	assertNoError(pipeline.WriteReport(wc, results))
	logger.Debugf(ctx, "written: %d", wc.Count())

	if runErr != nil {
		logger.Errorf(ctx, "%v", runErr)
		return 1
	}
	return 0
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
