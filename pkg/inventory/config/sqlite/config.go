package sqlite

import "flag"

// DefaultPath is where the inventory lives when the config does not say
// otherwise.
const DefaultPath = "data/r2r_master_inventory.sqlite"

type Config struct {
	Path string `yaml:"path"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Path, flagPrefix+"sqlite.path", DefaultPath, `Path to the SQLite inventory file`)
}
