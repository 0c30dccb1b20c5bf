package config

import (
	"flag"

	"github.com/ewhitman/davit/pkg/inventory/config/pg"
	"github.com/ewhitman/davit/pkg/inventory/config/sqlite"
)

type Config struct {
	Store       string `yaml:"store"`
	StoreConfig `yaml:",inline"`
}

type StoreConfig struct {
	Sqlite sqlite.Config `yaml:"sqlite"`
	Pg     pg.Config     `yaml:"pg"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	c.Sqlite.RegisterFlags(flagPrefix, f)
	c.Pg.RegisterFlags(flagPrefix, f)

	f.StringVar(&c.Store, flagPrefix+"store", "sqlite", `Store, that will be used to persist the inventory.`)
}
