package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/pelletier/go-toml"
)

// File is the content of the TOML config file.
type File struct {
	Address string `toml:"address"`
}

// AddrPort parses the address field.
func (f *File) AddrPort() (netip.AddrPort, error) {
	if f.Address == "" {
		return netip.AddrPort{}, errors.New("missing field address")
	}
	return ParseAddress(f.Address)
}

// LoadFile reads and decodes the config file at path.
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseFile(b)
}

// ParseFile decodes TOML content into a File. The address field is
// required and must be a valid socket address.
func ParseFile(b []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if _, err := f.AddrPort(); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return &f, nil
}
