package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/aneangel/CSE138-Assignment3/comm"
	"github.com/aneangel/CSE138-Assignment3/config"
	"github.com/aneangel/CSE138-Assignment3/node"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Functions

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

func main() {

	// Set CPUs usable by the replica to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Parse command-line flag that defines a config path.
	configFlag := flag.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	loglevelFlag := flag.String("loglevel", "debug", "This flag sets the default logging level.")
	flag.Parse()

	logger := initLogger(*loglevelFlag)

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load the config", "err", err,
		)
		os.Exit(1)
	}

	// Overlay deployment values from the environment and check
	// the result again, the overlay may rewrite the peer set.
	conf.ApplyEnv()
	if err := conf.Validate(); err != nil {
		level.Error(logger).Log(
			"msg", "config invalid after environment overlay", "err", err,
		)
		os.Exit(1)
	}

	logger = log.With(logger, "replica", conf.Replica.Addr)

	metrics := node.NewMetrics(conf.Replica.PrometheusAddr)

	var service node.Service
	service = node.NewService(logger, metrics, conf)
	service = node.NewLoggingService(service, logger)

	// Bind the replica socket before announcing anything, peers
	// probing this address must find it accepting.
	socket, err := net.Listen("tcp", conf.Replica.ListenAddr)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to bind replica socket",
			"addr", conf.Replica.ListenAddr,
			"err", err,
		)
		os.Exit(2)
	}

	receiver := comm.InitReceiver(logger, socket, service)

	go runPromHTTP(logger, conf.Replica.PrometheusAddr)

	level.Info(logger).Log(
		"msg", "replica accepting connections",
		"addr", conf.Replica.ListenAddr,
		"peers", strings.Join(conf.Replica.Peers, ","),
	)

	// Join the statically known peer group. Peers that are not up
	// yet are picked up by their own join announcements later.
	service.Announce()

	// Block until a shutdown signal arrives, then drain.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs

	level.Info(logger).Log("msg", "shutting down", "signal", sig.String())

	receiver.Shutdown()
	service.Shutdown()
}
