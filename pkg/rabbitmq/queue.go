package rabbitmq

import (
	"bytes"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errMissingField = errors.New("missing field")
	errNotArray     = errors.New("expected a json array")
)

// Queue is a single entry of `GET /api/queues`, reduced to the fields we
// publish.
//
type Queue struct {
	VHost string
	Name  string

	// Messages is the total number of messages in the queue, i.e., the
	// sum of ready and unacknowledged ones.
	//
	Messages float64

	MessagesReady          float64
	MessagesUnacknowledged float64
}

// queueRecord mirrors the wire format. Pointers let us tell a field that is
// absent (or null) apart from one that is legitimately zero.
//
type queueRecord struct {
	VHost                  *string  `json:"vhost"`
	Name                   *string  `json:"name"`
	Messages               *float64 `json:"messages"`
	MessagesReady          *float64 `json:"messages_ready"`
	MessagesUnacknowledged *float64 `json:"messages_unacknowledged"`
}

func (r *queueRecord) missingField() string {
	switch {
	case r.VHost == nil:
		return "vhost"
	case r.Name == nil:
		return "name"
	case r.Messages == nil:
		return "messages"
	case r.MessagesReady == nil:
		return "messages_ready"
	case r.MessagesUnacknowledged == nil:
		return "messages_unacknowledged"
	}

	return ""
}

// decodeQueues parses a management API queue listing. It is all-or-nothing:
// the first malformed element aborts decoding and nothing is returned.
//
func decodeQueues(body []byte) ([]Queue, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Index: -1, Err: errNotArray}
	}

	var elements []jsoniter.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}

	queues := make([]Queue, 0, len(elements))
	for idx, element := range elements {
		var record queueRecord

		if err := json.Unmarshal(element, &record); err != nil {
			return nil, &DecodeError{Index: idx, Err: err}
		}

		if field := record.missingField(); field != "" {
			return nil, &DecodeError{
				Index: idx,
				Field: field,
				Err:   errMissingField,
			}
		}

		queues = append(queues, Queue{
			VHost:                  *record.VHost,
			Name:                   *record.Name,
			Messages:               *record.Messages,
			MessagesReady:          *record.MessagesReady,
			MessagesUnacknowledged: *record.MessagesUnacknowledged,
		})
	}

	return queues, nil
}
