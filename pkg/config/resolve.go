// Package config resolves the socket address the server binds to.
//
// The address comes from the first valid entry of an ordered chain of
// sources: the command-line flag, the ADDRESS environment variable, the
// TOML config file and finally a constant default. A source that is absent
// or cannot be parsed is skipped.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"

	"github.com/pessolato/randmicroservice/pkg/logging"
)

const (
	// AddressEnvVar is the environment variable holding the address.
	AddressEnvVar = "ADDRESS"
	// DefaultConfigPath is the config file read when no path is given.
	DefaultConfigPath = "microservice.toml"
)

// DefaultAddress is the last resort of the chain.
var DefaultAddress = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 8080)

var (
	// ErrAbsent reports that a source holds no value.
	ErrAbsent = errors.New("source not set")
	// ErrNoAddress is returned when no source of the chain yields an address.
	ErrNoAddress = errors.New("no valid address found")
)

// Source is one step of the resolution chain.
type Source struct {
	Name string
	// Warn makes a failure of this source visible at warning level.
	// Failures of other sources are only traced.
	Warn    bool
	Resolve func() (netip.AddrPort, error)
}

// ParseAddress parses an "ip:port" socket address. IPv6 hosts must be
// bracketed and host names are rejected.
func ParseAddress(s string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid socket address %q: %w", s, err)
	}
	return addr, nil
}

// FlagSource resolves the value passed on the command line. An empty
// value means the flag was not given.
func FlagSource(value string) Source {
	return Source{
		Name: "flag",
		Resolve: func() (netip.AddrPort, error) {
			if value == "" {
				return netip.AddrPort{}, ErrAbsent
			}
			return ParseAddress(value)
		},
	}
}

// EnvSource resolves the environment variable name through lookup,
// usually [os.LookupEnv].
func EnvSource(name string, lookup func(string) (string, bool)) Source {
	return Source{
		Name: "env " + name,
		Resolve: func() (netip.AddrPort, error) {
			v, ok := lookup(name)
			if !ok {
				return netip.AddrPort{}, ErrAbsent
			}
			return ParseAddress(v)
		},
	}
}

// FileSource resolves the address field of the TOML file at path.
// Both a missing file and malformed content are reported as warnings.
func FileSource(path string) Source {
	return Source{
		Name: "file " + path,
		Warn: true,
		Resolve: func() (netip.AddrPort, error) {
			f, err := LoadFile(path)
			if err != nil {
				return netip.AddrPort{}, err
			}
			return f.AddrPort()
		},
	}
}

// DefaultSource always resolves to [DefaultAddress].
func DefaultSource() Source {
	return Source{
		Name: "default",
		Resolve: func() (netip.AddrPort, error) {
			return DefaultAddress, nil
		},
	}
}

// Chain returns the production resolution order for the given flag
// value and config file path. An empty path selects [DefaultConfigPath].
func Chain(flagValue, configPath string) []Source {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return []Source{
		FlagSource(flagValue),
		EnvSource(AddressEnvVar, os.LookupEnv),
		FileSource(configPath),
		DefaultSource(),
	}
}

// Resolve returns the address of the first source that is both present
// and parseable. Source failures never propagate; if every source fails
// ErrNoAddress is returned.
func Resolve(logger *slog.Logger, sources ...Source) (netip.AddrPort, error) {
	ctx := context.Background()
	for _, s := range sources {
		logger.Log(ctx, logging.LevelTrace, "trying address source", "source", s.Name)

		addr, err := s.Resolve()
		switch {
		case err == nil:
			logger.Debug("address resolved", "source", s.Name, "address", addr)
			return addr, nil
		case s.Warn:
			logger.Warn("can't read config file", "source", s.Name, "error", err)
		case errors.Is(err, ErrAbsent):
			logger.Log(ctx, logging.LevelTrace, "address source not set", "source", s.Name)
		default:
			logger.Log(ctx, logging.LevelTrace, "address source rejected", "source", s.Name, "error", err)
		}
	}
	return netip.AddrPort{}, ErrNoAddress
}
