package fanout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicforge/resourceserver/internal/resource"
)

func TestHub_RegisterAssignsMonotonicIDs(t *testing.T) {
	h := NewHub(context.Background(), nil)
	go h.Run()
	defer h.Shutdown()

	c1 := h.Register(nil)
	c2 := h.Register(nil)

	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint32(1), c1.ID)
	assert.Equal(t, uint32(2), c2.ID)
}

func TestHub_HandleEnvelopeQueuesInboundRequests(t *testing.T) {
	h := NewHub(context.Background(), nil)
	client := newClient(7, nil, h)

	payload, err := json.Marshal(RequestResourcePayload{ResourceIDs: []string{"mesh:a.mesh", "tex4:b.tex4"}})
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{MessageID: MsgRequestResource, ClientID: 7, Data: payload})
	require.NoError(t, err)

	h.handleEnvelope(client, data)

	drained := h.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "mesh:a.mesh", drained[0].RawID)
	assert.Equal(t, uint32(7), drained[0].ClientID)
	assert.Equal(t, "tex4:b.tex4", drained[1].RawID)

	assert.Empty(t, h.Drain(), "a second drain before new traffic should be empty")
}

func TestHub_HandleEnvelopeIgnoresUnknownMessageID(t *testing.T) {
	h := NewHub(context.Background(), nil)
	client := newClient(1, nil, h)

	data, err := json.Marshal(Envelope{MessageID: "SomethingElse", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	h.handleEnvelope(client, data)
	assert.Empty(t, h.Drain())
}

func TestHub_FlushBroadcastsUpdated(t *testing.T) {
	h := NewHub(context.Background(), nil)
	go h.Run()
	defer h.Shutdown()

	c1 := h.Register(nil)
	c2 := h.Register(nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	id, err := resource.ParseID("mesh:a.mesh")
	require.NoError(t, err)
	h.NotifyUpdated(id, "/out/a.mesh", "")

	h.Flush()

	for _, c := range []*Client{c1, c2} {
		select {
		case frame := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			assert.Equal(t, MsgResourceUpdated, env.MessageID)
		default:
			t.Fatal("expected broadcast frame")
		}
	}
}

func TestHub_FlushAddressesCompleteToOriginator(t *testing.T) {
	h := NewHub(context.Background(), nil)
	go h.Run()
	defer h.Shutdown()

	c1 := h.Register(nil)
	c2 := h.Register(nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	id, err := resource.ParseID("mesh:a.mesh")
	require.NoError(t, err)
	h.NotifyRequestComplete(c1.ID, id, "/out/a.mesh", "")

	h.Flush()

	select {
	case <-c1.send:
	default:
		t.Fatal("expected addressed frame for c1")
	}

	select {
	case <-c2.send:
		t.Fatal("c2 should not have received the addressed frame")
	default:
	}
}

func TestHub_FlushChunksLargeBroadcast(t *testing.T) {
	h := NewHub(context.Background(), nil)
	go h.Run()
	defer h.Shutdown()

	c1 := h.Register(nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 65; i++ {
		id, err := resource.ParseID("mesh:a.mesh")
		require.NoError(t, err)
		h.NotifyUpdated(id, "/out/a.mesh", "")
	}

	h.Flush()

	frames := 0
	for {
		select {
		case <-c1.send:
			frames++
		default:
			assert.Equal(t, 2, frames)
			return
		}
	}
}
