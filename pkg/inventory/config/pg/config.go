package pg

import (
	"flag"

	"github.com/grafana/dskit/flagext"
)

type Config struct {
	Conn flagext.Secret `yaml:"conn"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.Var(&c.Conn, flagPrefix+"pg.conn", `Postgres connection string`)
}
