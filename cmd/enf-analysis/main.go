package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/calvan/enf-analysis/pkg/config"
	_ "github.com/calvan/enf-analysis/pkg/frame/implementations/gocv"
	_ "github.com/calvan/enf-analysis/pkg/frame/implementations/imagedir"
	_ "github.com/calvan/enf-analysis/pkg/motion/implementations/gocv"
	"github.com/calvan/enf-analysis/pkg/pipeline"
	"github.com/calvan/enf-analysis/pkg/storage"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
)

func main() {
	os.Exit(run())
}

// run returns the exit code; everything deferred in it runs before exiting.
func run() int {
	loggerLevel := logger.LevelDebug
	pflag.Var(&loggerLevel, "log-level", "Log level")
	cfg := config.Default()
	cfg.RegisterFlags(pflag.CommandLine)
	configPath := pflag.String("config", "", "a YAML file with the analysis parameters; explicit flags take precedence")
	reportPath := pflag.String("report", "", "write the report into this file instead of stdout")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() == 0 {
		panic(fmt.Errorf("expected at least one positional argument: path to a video or to a directory of frames"))
	}

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
	logger.Infof(ctx, "starting run %s over %d videos...", p.RunID, pflag.NArg())

	results, runErr := p.Run(ctx, pflag.Args())

	var out io.Writer = os.Stdout
	if *reportPath != "" {
		f, err := os.Create(*reportPath)
		assertNoError(err)
		defer f.Close()
		out = f
	}
	wc := datacounter.NewWriterCounter(out)
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
