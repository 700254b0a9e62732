package mlme

import (
	"github.com/google/gopacket/layers"

	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

// akmAction is the outcome of feeding one authentication frame to the
// active algorithm.
type akmAction uint8

const (
	akmContinue akmAction = iota
	akmSuccess
	akmFailure
)

// akm is the pluggable authentication strategy. Open System completes
// in one round trip; SAE relays frames between the air and the SME.
type akm interface {
	// initiate sends whatever starts the handshake.
	initiate(c *Client) error
	// handleAuthFrame consumes one authentication frame from the peer.
	handleAuthFrame(c *Client, body *wire.AuthenticationBody) akmAction
}

func newAKM(t sme.AuthType) akm {
	if t == sme.AuthTypeSAE {
		return &saeRelay{}
	}
	return &openSystem{}
}

// openSystem is the single round trip: request with sequence 1, accept
// a success response with sequence 2.
type openSystem struct{}

func (*openSystem) initiate(c *Client) error {
	f := &wire.Authentication{
		MgmtHeader:     c.mgmtHeader(),
		Algorithm:      layers.Dot11AlgorithmOpen,
		TransactionSeq: 1,
		Status:         layers.Dot11StatusSuccess,
	}
	return c.sendMgmt(f.Serialize())
}

func (*openSystem) handleAuthFrame(c *Client, body *wire.AuthenticationBody) akmAction {
	if body.Algorithm != layers.Dot11AlgorithmOpen || body.TransactionSeq != 2 {
		return akmFailure
	}
	if body.Status != layers.Dot11StatusSuccess {
		return akmFailure
	}
	return akmSuccess
}

// saeRelay is a transparent relay: the SME runs the cryptography and
// supplies the commit/confirm bodies; the relay validates only the
// frame format and reports the handshake result the SME decides on.
type saeRelay struct {
	done   bool
	status uint16
}

func (*saeRelay) initiate(c *Client) error {
	c.sme.Send(&sme.SaeHandshakeIndication{PeerAddr: c.bss.BSSID})
	return nil
}

func (r *saeRelay) handleAuthFrame(c *Client, body *wire.AuthenticationBody) akmAction {
	if body.Algorithm != wire.AlgorithmSAE {
		return akmFailure
	}
	if r.done {
		return r.result()
	}
	c.sme.Send(&sme.SaeFrameRx{Frame: sme.SaeFrame{
		PeerAddr:       c.bss.BSSID,
		TransactionSeq: body.TransactionSeq,
		Status:         uint16(body.Status),
		Body:           body.Fields,
	}})
	return akmContinue
}

// transmit sends one SME-built SAE frame to the peer.
func (r *saeRelay) transmit(c *Client, frame *sme.SaeFrame) error {
	f := &wire.Authentication{
		MgmtHeader:     c.mgmtHeader(),
		Algorithm:      wire.AlgorithmSAE,
		TransactionSeq: frame.TransactionSeq,
		Status:         layers.Dot11Status(frame.Status),
		Fields:         frame.Body,
	}
	return c.sendMgmt(f.Serialize())
}

// finish records the SME's verdict on the handshake.
func (r *saeRelay) finish(status uint16) akmAction {
	r.done = true
	r.status = status
	return r.result()
}

func (r *saeRelay) result() akmAction {
	if r.status == 0 {
		return akmSuccess
	}
	return akmFailure
}
