package mlme

import (
	"github.com/google/gopacket/layers"

	"github.com/boxwifi/mlme/wire"
)

// BlockAckState is the per-TID aggregation negotiation state.
type BlockAckState uint8

const (
	BlockAckClosed BlockAckState = iota
	BlockAckNegotiating
	BlockAckEstablished
)

func (s BlockAckState) String() string {
	switch s {
	case BlockAckClosed:
		return "closed"
	case BlockAckNegotiating:
		return "negotiating"
	case BlockAckEstablished:
		return "established"
	default:
		return "unknown"
	}
}

const (
	// addbaBufferSize is the reorder buffer size offered to the AP.
	addbaBufferSize = 64
	// addbaTimeoutTU disables the inactivity timeout.
	addbaTimeoutTU = 0
)

type blockAckStream struct {
	state       BlockAckState
	dialogToken uint8
}

// BlockAck tracks STA-originated block-ack sessions per TID. It builds
// the ADDBA bodies; the owning state machine wraps and transmits them.
type BlockAck struct {
	streams   map[uint8]*blockAckStream
	nextToken uint8
}

func NewBlockAck() *BlockAck {
	return &BlockAck{streams: make(map[uint8]*blockAckStream)}
}

// State reports the negotiation state for a TID.
func (b *BlockAck) State(tid uint8) BlockAckState {
	if s, ok := b.streams[tid]; ok {
		return s.state
	}
	return BlockAckClosed
}

// StartNegotiation moves a closed TID to negotiating and returns the
// ADDBA request fields to transmit. It returns false when the TID is
// already negotiating or established.
func (b *BlockAck) StartNegotiation(tid uint8, startingSeq uint16) (*wire.ADDBARequest, bool) {
	if b.State(tid) != BlockAckClosed {
		return nil, false
	}
	b.nextToken++
	if b.nextToken == 0 {
		b.nextToken = 1
	}
	b.streams[tid] = &blockAckStream{state: BlockAckNegotiating, dialogToken: b.nextToken}
	return &wire.ADDBARequest{
		DialogToken: b.nextToken,
		ImmediateBA: true,
		TID:         tid,
		BufferSize:  addbaBufferSize,
		TimeoutTU:   addbaTimeoutTU,
		StartingSeq: startingSeq,
	}, true
}

// HandleResponse consumes an ADDBA response. A matching success moves
// the TID to established; a mismatched token or failure status closes
// it again.
func (b *BlockAck) HandleResponse(resp *wire.ADDBAResponseBody) BlockAckState {
	s, ok := b.streams[resp.TID]
	if !ok || s.state != BlockAckNegotiating {
		return b.State(resp.TID)
	}
	if resp.DialogToken != s.dialogToken || resp.Status != layers.Dot11StatusSuccess {
		delete(b.streams, resp.TID)
		return BlockAckClosed
	}
	s.state = BlockAckEstablished
	return BlockAckEstablished
}

// HandleTimeout closes a TID stuck in negotiation.
func (b *BlockAck) HandleTimeout(tid uint8) {
	if s, ok := b.streams[tid]; ok && s.state == BlockAckNegotiating {
		delete(b.streams, tid)
	}
}

// Reset drops all sessions, used on disassociation.
func (b *BlockAck) Reset() {
	b.streams = make(map[uint8]*blockAckStream)
}
