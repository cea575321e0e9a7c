package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Config tunes the machine and the toolchain. It is read from yun.toml in
// the working directory (or the file named by -config); every field is
// optional and zero values select the built-in defaults.
type Config struct {
	// Trace enables per-instruction debug logging.
	Trace bool `toml:"trace"`

	// Registers sizes the initial register file.
	Registers int `toml:"registers"`

	// Heap sizes the initial array heap slot table.
	Heap int `toml:"heap"`

	// Cache is the path of the assembled-unit cache database. Empty
	// disables caching.
	Cache string `toml:"cache"`
}

// defaultConfigFile is searched when -config isn't given.
const defaultConfigFile = "yun.toml"

// loadConfig reads the config file. A missing default file is not an
// error; a missing explicit -config file is.
func loadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
	}
	return cfg, nil
}
