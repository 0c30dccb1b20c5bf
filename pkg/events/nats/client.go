package nats

import (
	"github.com/ewhitman/davit/pkg/events/message"
	"github.com/go-kit/log"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Config struct {
	Url string `yaml:"url"`
}

type NatsClient struct {
	conn *nats.Conn
	log  log.Logger
}

func NewNatsClient(cfg Config, log log.Logger) (*NatsClient, error) {
	conn, err := nats.Connect(cfg.Url)
	if err != nil {
		return nil, errors.Wrap(err, "initialize nats connection")
	}

	return &NatsClient{
		conn: conn,
		log:  log,
	}, nil
}

func (n *NatsClient) Pub(channel string, msg *message.Message) error {
	if err := n.conn.Publish(channel, []byte(msg.String())); err != nil {
		return errors.Wrap(err, "nats publish")
	}

	return nil
}

func (n *NatsClient) Sub(channel string, action func(msg *message.Message)) error {
	_, err := n.conn.QueueSubscribe(channel, channel, func(m *nats.Msg) {
		msg, err := message.NewMessage(string(m.Data))
		if err != nil {
			return
		}
		action(msg)
	})
	if err != nil {
		return errors.Wrap(err, "nats subscribe")
	}

	return nil
}
