package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type capturePublisher struct {
	events []StatusEvent
}

func (p *capturePublisher) PublishStatusEvent(ev StatusEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newTestClient(id string, recordingID int64) *Client {
	return &Client{ID: id, recordingID: recordingID, send: make(chan StatusEvent, 8)}
}

func TestHubBroadcastsLocallyWithoutPublisher(t *testing.T) {
	h := NewHub(nil, nil, nil)
	all := newTestClient("all", 0)
	only42 := newTestClient("only42", 42)
	other := newTestClient("other", 7)
	h.register(all)
	h.register(only42)
	h.register(other)

	h.PublishStatus(42, "transcribing")

	assert.Len(t, all.send, 1)
	assert.Len(t, only42.send, 1)
	assert.Empty(t, other.send)

	ev := <-only42.send
	assert.Equal(t, int64(42), ev.RecordingID)
	assert.Equal(t, "transcribing", ev.Status)
}

func TestHubPublishesInsteadOfBroadcastingWhenWired(t *testing.T) {
	pub := &capturePublisher{}
	h := NewHub(nil, pub, nil)
	c := newTestClient("c", 0)
	h.register(c)

	h.PublishStatus(5, "completed")

	// Local delivery happens via the subscription callback, not directly.
	assert.Empty(t, c.send)
	assert.Len(t, pub.events, 1)
	assert.Equal(t, int64(5), pub.events[0].RecordingID)
}

func TestHubUnregister(t *testing.T) {
	h := NewHub(nil, nil, nil)
	c := newTestClient("c", 0)
	h.register(c)
	assert.Equal(t, 1, h.ClientCount())
	h.unregister(c)
	assert.Equal(t, 0, h.ClientCount())

	h.PublishStatus(1, "downloading")
	assert.Empty(t, c.send)
}
