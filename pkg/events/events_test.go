package events

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherDefaultsToNop(t *testing.T) {
	pub, err := NewPublisher(Config{}, log.NewNopLogger())
	require.NoError(t, err)
	assert.NoError(t, pub.Pub(Channel, nil))
}

func TestNewPublisherRejectsUnknownType(t *testing.T) {
	_, err := NewPublisher(Config{Type: "kafka"}, log.NewNopLogger())
	assert.Error(t, err)
}

func TestNewSubscriberRejectsUnknownType(t *testing.T) {
	// There is no nop subscriber; watching requires a real backend.
	_, err := NewSubscriber(Config{Type: "none"}, log.NewNopLogger())
	assert.Error(t, err)
}
