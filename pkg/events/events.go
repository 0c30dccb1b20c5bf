// Package events publishes pipeline status transitions so downstream
// ingest tooling can react to new pulldowns.
package events

import (
	"flag"

	"github.com/ewhitman/davit/pkg/events/message"
	"github.com/ewhitman/davit/pkg/events/nats"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

const Channel = "davit"

type Config struct {
	Type string      `yaml:"type"`
	Nats nats.Config `yaml:"nats"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Type, flagPrefix+"type", "none", `Event publisher backend.`)
	f.StringVar(&c.Nats.Url, flagPrefix+"nats.url", "", `NATS connection URL`)
}

type Publisher interface {
	Pub(channel string, msg *message.Message) error
}

type Subscriber interface {
	Sub(channel string, action func(msg *message.Message)) error
}

func NewPublisher(cfg Config, log log.Logger) (Publisher, error) {
	switch cfg.Type {
	case "none", "":
		return nopPublisher{}, nil
	case "nats":
		return nats.NewNatsClient(cfg.Nats, log)
	default:
		return nil, errors.New("invalid events type")
	}
}

func NewSubscriber(cfg Config, log log.Logger) (Subscriber, error) {
	switch cfg.Type {
	case "nats":
		return nats.NewNatsClient(cfg.Nats, log)
	default:
		return nil, errors.New("invalid events type")
	}
}

type nopPublisher struct{}

func (nopPublisher) Pub(string, *message.Message) error { return nil }
