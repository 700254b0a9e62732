package wire

import "net"

const seqModulus = 4096

type seqKey struct {
	peer [macAddrLen]byte
	tid  uint8
}

// SeqManager assigns outgoing 12-bit sequence numbers. QoS data keeps
// an independent counter per receiver and TID; everything else shares
// the base counter per receiver.
type SeqManager struct {
	base map[[macAddrLen]byte]uint16
	qos  map[seqKey]uint16
}

func NewSeqManager() *SeqManager {
	return &SeqManager{
		base: make(map[[macAddrLen]byte]uint16),
		qos:  make(map[seqKey]uint16),
	}
}

// Next returns the next sequence number for a management or non-QoS
// data frame to peer.
func (m *SeqManager) Next(peer net.HardwareAddr) uint16 {
	var k [macAddrLen]byte
	copy(k[:], peer)
	seq := (m.base[k] + 1) % seqModulus
	m.base[k] = seq
	return seq
}

// NextQoS returns the next sequence number for a QoS data frame to peer
// on the given TID.
func (m *SeqManager) NextQoS(peer net.HardwareAddr, tid uint8) uint16 {
	k := seqKey{tid: tid}
	copy(k.peer[:], peer)
	seq := (m.qos[k] + 1) % seqModulus
	m.qos[k] = seq
	return seq
}
