package mlme

import (
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/boxwifi/mlme/wire"
)

func TestBlockAckNegotiationLifecycle(t *testing.T) {
	b := NewBlockAck()
	if got := b.State(0); got != BlockAckClosed {
		t.Fatalf("initial state = %v, want closed", got)
	}

	req, ok := b.StartNegotiation(0, 10)
	if !ok {
		t.Fatal("StartNegotiation refused on a closed TID")
	}
	if b.State(0) != BlockAckNegotiating {
		t.Fatalf("state after request = %v, want negotiating", b.State(0))
	}
	if _, ok := b.StartNegotiation(0, 10); ok {
		t.Fatal("second StartNegotiation accepted while negotiating")
	}

	got := b.HandleResponse(&wire.ADDBAResponseBody{
		DialogToken: req.DialogToken,
		Status:      layers.Dot11StatusSuccess,
		TID:         0,
		BufferSize:  32,
	})
	if got != BlockAckEstablished {
		t.Fatalf("state after success response = %v, want established", got)
	}
}

func TestBlockAckRejectedResponseCloses(t *testing.T) {
	b := NewBlockAck()
	req, _ := b.StartNegotiation(5, 0)
	got := b.HandleResponse(&wire.ADDBAResponseBody{
		DialogToken: req.DialogToken,
		Status:      layers.Dot11Status(37),
		TID:         5,
	})
	if got != BlockAckClosed {
		t.Fatalf("state after rejection = %v, want closed", got)
	}
}

func TestBlockAckMismatchedTokenCloses(t *testing.T) {
	b := NewBlockAck()
	req, _ := b.StartNegotiation(1, 0)
	got := b.HandleResponse(&wire.ADDBAResponseBody{
		DialogToken: req.DialogToken + 1,
		Status:      layers.Dot11StatusSuccess,
		TID:         1,
	})
	if got != BlockAckClosed {
		t.Fatalf("state after token mismatch = %v, want closed", got)
	}
}

func TestBlockAckTimeoutAllowsRetry(t *testing.T) {
	b := NewBlockAck()
	b.StartNegotiation(3, 0)
	b.HandleTimeout(3)
	if b.State(3) != BlockAckClosed {
		t.Fatalf("state after timeout = %v, want closed", b.State(3))
	}
	if _, ok := b.StartNegotiation(3, 0); !ok {
		t.Fatal("negotiation not restartable after timeout")
	}
}
