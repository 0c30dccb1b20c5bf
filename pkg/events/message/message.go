package message

import (
	"fmt"
	"strings"

	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/pkg/errors"
)

type Message struct {
	FilesetID string
	Status    string
}

func NewMessage(raw string) (*Message, error) {
	tokens := strings.Split(raw, "_")
	if len(tokens) != 2 {
		return nil, errors.New("invalid message raw input (len)")
	}

	if !record.IsValidStatus(tokens[1]) {
		return nil, errors.New("invalid message raw input (status)")
	}

	return &Message{
		FilesetID: tokens[0],
		Status:    tokens[1],
	}, nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s_%s", m.FilesetID, m.Status)
}
