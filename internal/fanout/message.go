package fanout

import (
	"encoding/json"
	"fmt"
)

// Message ids recognized on the wire, per the external interface
// contract: one inbound kind, two outbound kinds.
const (
	MsgRequestResource         = "RequestResource"
	MsgResourceUpdated         = "ResourceUpdated"
	MsgResourceRequestComplete = "ResourceRequestComplete"
)

// Envelope is the JSON frame carried over a single websocket text
// message: a message id, the client it is addressed to or came from,
// and a typed payload.
type Envelope struct {
	MessageID string          `json:"message_id"`
	ClientID  uint32          `json:"client_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// RequestResourcePayload is the inbound RequestResource body.
type RequestResourcePayload struct {
	ResourceIDs []string `json:"resource_ids"`
}

// ResultTuple is a single compile outcome as reported on the wire. A
// successful result carries FilePath and an empty Log; a failure
// carries an empty FilePath and the captured compiler log.
type ResultTuple struct {
	ResourceID string `json:"resource_id"`
	FilePath   string `json:"file_path"`
	Log        string `json:"log"`
}

// ResultsPayload is the outbound body for both ResourceUpdated and
// ResourceRequestComplete.
type ResultsPayload struct {
	Results []ResultTuple `json:"results"`
}

func marshalEnvelope(messageID string, clientID uint32, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}

	return json.Marshal(Envelope{MessageID: messageID, ClientID: clientID, Data: data})
}

// chunk splits tuples into groups of at most maxResultsPerFrame,
// capping per-message payload size.
func chunk(tuples []ResultTuple) [][]ResultTuple {
	if len(tuples) == 0 {
		return nil
	}

	var out [][]ResultTuple
	for len(tuples) > maxResultsPerFrame {
		out = append(out, tuples[:maxResultsPerFrame])
		tuples = tuples[maxResultsPerFrame:]
	}
	return append(out, tuples)
}
