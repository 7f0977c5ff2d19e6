package config

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	lib "github.com/nil-go/konf"
	"github.com/nil-go/konf/provider/env"
	"github.com/nil-go/konf/provider/file"
	pflagP "github.com/nil-go/konf/provider/pflag"
	"github.com/spf13/pflag"
	"go.bryk.io/x/cargonetsim/errors"
	"gopkg.in/yaml.v3"
)

// loader layers configuration sources for a CargoNetSim deployment in
// override order: the first readable settings file, then CARGONETSIM_*
// environment variables, then explicitly set command-line flags.
func load(locations []string, flags *pflag.FlagSet) (*lib.Config, error) {
	cfg, err := loadFile(locations)
	if err != nil {
		return nil, err
	}

	ns := func(s string) []string {
		return strings.Split(strings.TrimPrefix(s, envPrefix+"_"), "_")
	}
	if err := cfg.Load(env.New(env.WithPrefix(envPrefix+"_"), env.WithNameSplitter(ns))); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := cfg.Load(pflagP.New(cfg, pflagP.WithFlagSet(flags))); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadFile reads the first usable settings file from locations. The decoder
// and struct-tag name follow the file extension: .yaml/.yml or .json.
func loadFile(locations []string) (*lib.Config, error) {
	for _, location := range locations {
		info, err := os.Stat(location)
		if err != nil || info.IsDir() {
			continue
		}
		tag, unmarshal := decoderFor(path.Ext(info.Name()))
		if unmarshal == nil {
			continue
		}
		cfg := lib.New(lib.WithTagName(tag))
		if err := cfg.Load(file.New(location, file.WithUnmarshal(unmarshal))); err == nil {
			return cfg, nil
		}
	}
	return nil, errors.New("no valid settings file found")
}

func decoderFor(extension string) (tag string, unmarshal func([]byte, any) error) {
	switch extension {
	case ".yaml", ".yml":
		return "yaml", yaml.Unmarshal
	case ".json":
		return "json", json.Unmarshal
	}
	return "", nil
}

// DefaultLocations returns the paths searched for a settings file when none
// is given explicitly:
//   - /etc/cargonetsim/<fileName> (not on windows)
//   - ${HOME}/cargonetsim/<fileName>
//   - ${HOME}/.cargonetsim/<fileName>
//   - <working dir>/<fileName>
func DefaultLocations(fileName string) []string {
	locations := []string{}
	if runtime.GOOS != "windows" {
		locations = append(locations, filepath.Join("/etc", "cargonetsim", fileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, "cargonetsim", fileName))
		locations = append(locations, filepath.Join(home, ".cargonetsim", fileName))
	}
	if cwd, err := os.Getwd(); err == nil {
		locations = append(locations, filepath.Join(cwd, fileName))
	}
	return locations
}
