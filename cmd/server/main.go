package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/akamensky/argparse"

	"github.com/pessolato/randmicroservice/pkg/config"
	"github.com/pessolato/randmicroservice/pkg/logging"
	"github.com/pessolato/randmicroservice/pkg/osutil"
	"github.com/pessolato/randmicroservice/pkg/server"
)

const (
	name    = "rand-microservice"
	version = "0.1.0"

	logLevelEnvVar = "MY_LOG"
)

func main() {
	logger := logging.FromEnv(logLevelEnvVar)
	if err := osutil.LoadDotEnv(); err != nil {
		logger.Warn("can't load dotenv file", "error", err)
	}

	address, configPath, err := parseArgs(os.Args)
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		os.Exit(2)
	}

	logger.Info("Rand Microservice -v" + version)

	addr, err := config.Resolve(logger, config.Chain(address, configPath)...)
	osutil.ExitOnErr(err)

	osutil.ExitOnErr(server.ListenAndServeRand(addr, logger))
}

// parseArgs reads the address and config file flags from args, whose
// first element is the program name. The returned error carries the usage.
func parseArgs(args []string) (address, configPath string, err error) {
	parser := argparse.NewParser(name, "Responds to every HTTP request with a random byte")
	a := parser.String("a", "address", &argparse.Options{
		Help: "Sets an address",
	})
	c := parser.String("c", "config", &argparse.Options{
		Help:    "Sets a custom config file",
		Default: config.DefaultConfigPath,
	})
	if err := parser.Parse(args); err != nil {
		return "", "", errors.New(parser.Usage(err))
	}
	return *a, *c, nil
}
