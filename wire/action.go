package wire

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// Action frame categories and block-ack action codes.
const (
	CategoryBlockAck uint8 = 3

	ActionADDBARequest  uint8 = 0
	ActionADDBAResponse uint8 = 1
	ActionDELBA         uint8 = 2
)

// Block Ack Parameter Set bit layout.
const (
	baParamAMSDU     uint16 = 1 << 0
	baParamImmediate uint16 = 1 << 1
	baParamTIDShift         = 2
	baParamTIDMask   uint16 = 0x000F << baParamTIDShift
	baParamBufShift         = 6
)

// ADDBARequest is the block-ack session setup request, sent by the
// originator of a per-TID stream.
type ADDBARequest struct {
	MgmtHeader
	DialogToken     uint8
	AMSDU           bool
	ImmediateBA     bool
	TID             uint8
	BufferSize      uint16
	TimeoutTU       uint16
	StartingSeq     uint16
	StartingFragNum uint8
}

func (f *ADDBARequest) Serialize() []byte {
	f.Subtype = layers.Dot11TypeMgmtAction
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var body [9]byte
	body[0] = CategoryBlockAck
	body[1] = ActionADDBARequest
	body[2] = f.DialogToken
	binary.LittleEndian.PutUint16(body[3:5], f.paramSet())
	binary.LittleEndian.PutUint16(body[5:7], f.TimeoutTU)
	ssc := f.StartingSeq<<4 | uint16(f.StartingFragNum)&0x0F
	binary.LittleEndian.PutUint16(body[7:9], ssc)
	return append(data, body[:]...)
}

func (f *ADDBARequest) paramSet() uint16 {
	return baParams(f.AMSDU, f.ImmediateBA, f.TID, f.BufferSize)
}

// ADDBAResponse accepts or declines a block-ack session.
type ADDBAResponse struct {
	MgmtHeader
	DialogToken uint8
	Status      layers.Dot11Status
	AMSDU       bool
	ImmediateBA bool
	TID         uint8
	BufferSize  uint16
	TimeoutTU   uint16
}

func (f *ADDBAResponse) Serialize() []byte {
	f.Subtype = layers.Dot11TypeMgmtAction
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var body [9]byte
	body[0] = CategoryBlockAck
	body[1] = ActionADDBAResponse
	body[2] = f.DialogToken
	binary.LittleEndian.PutUint16(body[3:5], uint16(f.Status))
	binary.LittleEndian.PutUint16(body[5:7], baParams(f.AMSDU, f.ImmediateBA, f.TID, f.BufferSize))
	binary.LittleEndian.PutUint16(body[7:9], f.TimeoutTU)
	return append(data, body[:]...)
}

func baParams(amsdu, immediate bool, tid uint8, bufSize uint16) uint16 {
	var p uint16
	if amsdu {
		p |= baParamAMSDU
	}
	if immediate {
		p |= baParamImmediate
	}
	p |= uint16(tid) << baParamTIDShift & baParamTIDMask
	p |= bufSize << baParamBufShift
	return p
}

// ActionBody is the category and action code of a received action frame
// plus its remaining fields.
type ActionBody struct {
	Category uint8
	Action   uint8
	Fields   []byte
}

func ParseAction(f *MgmtFrame) (*ActionBody, error) {
	if f.Subtype != layers.Dot11TypeMgmtAction {
		return nil, ErrWrongSubtype
	}
	if len(f.Body) < 2 {
		return nil, ErrFrameTooShort
	}
	return &ActionBody{Category: f.Body[0], Action: f.Body[1], Fields: f.Body[2:]}, nil
}

// ADDBARequestBody is a parsed ADDBA request.
type ADDBARequestBody struct {
	DialogToken uint8
	AMSDU       bool
	ImmediateBA bool
	TID         uint8
	BufferSize  uint16
	TimeoutTU   uint16
	StartingSeq uint16
}

func ParseADDBARequest(a *ActionBody) (*ADDBARequestBody, error) {
	if a.Category != CategoryBlockAck || a.Action != ActionADDBARequest {
		return nil, ErrWrongSubtype
	}
	if len(a.Fields) < 7 {
		return nil, ErrFrameTooShort
	}
	params := binary.LittleEndian.Uint16(a.Fields[1:3])
	return &ADDBARequestBody{
		DialogToken: a.Fields[0],
		AMSDU:       params&baParamAMSDU != 0,
		ImmediateBA: params&baParamImmediate != 0,
		TID:         uint8(params & baParamTIDMask >> baParamTIDShift),
		BufferSize:  params >> baParamBufShift,
		TimeoutTU:   binary.LittleEndian.Uint16(a.Fields[3:5]),
		StartingSeq: binary.LittleEndian.Uint16(a.Fields[5:7]) >> 4,
	}, nil
}

// ADDBAResponseBody is a parsed ADDBA response.
type ADDBAResponseBody struct {
	DialogToken uint8
	Status      layers.Dot11Status
	AMSDU       bool
	ImmediateBA bool
	TID         uint8
	BufferSize  uint16
	TimeoutTU   uint16
}

func ParseADDBAResponse(a *ActionBody) (*ADDBAResponseBody, error) {
	if a.Category != CategoryBlockAck || a.Action != ActionADDBAResponse {
		return nil, ErrWrongSubtype
	}
	if len(a.Fields) < 7 {
		return nil, ErrFrameTooShort
	}
	params := binary.LittleEndian.Uint16(a.Fields[3:5])
	return &ADDBAResponseBody{
		DialogToken: a.Fields[0],
		Status:      layers.Dot11Status(binary.LittleEndian.Uint16(a.Fields[1:3])),
		AMSDU:       params&baParamAMSDU != 0,
		ImmediateBA: params&baParamImmediate != 0,
		TID:         uint8(params & baParamTIDMask >> baParamTIDShift),
		BufferSize:  params >> baParamBufShift,
		TimeoutTU:   binary.LittleEndian.Uint16(a.Fields[5:7]),
	}, nil
}
