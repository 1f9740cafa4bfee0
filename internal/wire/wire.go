// Package wire defines the records exchanged between the trading
// clients and the exchange, and their packed little-endian encoding.
// Order flow runs over framed TCP, market data over UDP multicast;
// both directions carry a uint64 sequence number ahead of each
// record.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/tradewire/tradewire/internal/common"
)

// EncodeSeqNum packs a frame's leading sequence number into buf.
func EncodeSeqNum(buf []byte, seqNum uint64) {
	binary.LittleEndian.PutUint64(buf, seqNum)
}

// DecodeSeqNum unpacks a frame's leading sequence number from buf.
func DecodeSeqNum(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// ClientRequestType represents the kind of an inbound order request.
type ClientRequestType uint8

const (
	RequestInvalid ClientRequestType = 0
	RequestNew     ClientRequestType = 1
	RequestCancel  ClientRequestType = 2
)

func (t ClientRequestType) String() string {
	switch t {
	case RequestNew:
		return "NEW"
	case RequestCancel:
		return "CANCEL"
	}
	return "INVALID"
}

// ClientRequest is an order request as the matching engine consumes
// it. OrderId is the client-assigned order id.
type ClientRequest struct {
	Type     ClientRequestType
	ClientId common.ClientId
	TickerId common.TickerId
	OrderId  common.OrderId
	Side     common.Side
	Price    common.Price
	Qty      common.Qty
}

// ClientRequestSize is the packed size of a ClientRequest.
const ClientRequestSize = 1 + 4 + 4 + 8 + 1 + 8 + 4

// OMClientRequestSize is the framed size on the wire: sequence number
// plus record.
const OMClientRequestSize = 8 + ClientRequestSize

func (r *ClientRequest) String() string {
	return fmt.Sprintf("ClientRequest[type:%v client:%d ticker:%d oid:%v side:%v price:%v qty:%v]",
		r.Type, r.ClientId, r.TickerId, r.OrderId, r.Side, r.Price, r.Qty)
}

// Encode packs the request into buf, which must hold at least
// ClientRequestSize bytes.
func (r *ClientRequest) Encode(buf []byte) {
	buf[0] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[1:], uint32(r.ClientId))
	binary.LittleEndian.PutUint32(buf[5:], uint32(r.TickerId))
	binary.LittleEndian.PutUint64(buf[9:], uint64(r.OrderId))
	buf[17] = byte(r.Side)
	binary.LittleEndian.PutUint64(buf[18:], uint64(r.Price))
	binary.LittleEndian.PutUint32(buf[26:], uint32(r.Qty))
}

// DecodeClientRequest unpacks a request from buf.
func DecodeClientRequest(buf []byte) ClientRequest {
	return ClientRequest{
		Type:     ClientRequestType(buf[0]),
		ClientId: common.ClientId(binary.LittleEndian.Uint32(buf[1:])),
		TickerId: common.TickerId(binary.LittleEndian.Uint32(buf[5:])),
		OrderId:  common.OrderId(binary.LittleEndian.Uint64(buf[9:])),
		Side:     common.Side(buf[17]),
		Price:    common.Price(binary.LittleEndian.Uint64(buf[18:])),
		Qty:      common.Qty(binary.LittleEndian.Uint32(buf[26:])),
	}
}

// ClientResponseType represents the kind of an outbound order
// response.
type ClientResponseType uint8

const (
	ResponseInvalid        ClientResponseType = 0
	ResponseAccepted       ClientResponseType = 1
	ResponseCanceled       ClientResponseType = 2
	ResponseFilled         ClientResponseType = 3
	ResponseCancelRejected ClientResponseType = 4
)

func (t ClientResponseType) String() string {
	switch t {
	case ResponseAccepted:
		return "ACCEPTED"
	case ResponseCanceled:
		return "CANCELED"
	case ResponseFilled:
		return "FILLED"
	case ResponseCancelRejected:
		return "CANCEL_REJECTED"
	}
	return "INVALID"
}

// ClientResponse is the matching engine's answer to a request.
// ClientOrderId is the client-assigned id, MarketOrderId the
// exchange-assigned one.
type ClientResponse struct {
	Type          ClientResponseType
	ClientId      common.ClientId
	TickerId      common.TickerId
	ClientOrderId common.OrderId
	MarketOrderId common.OrderId
	Side          common.Side
	Price         common.Price
	ExecQty       common.Qty
	LeavesQty     common.Qty
}

// ClientResponseSize is the packed size of a ClientResponse.
const ClientResponseSize = 1 + 4 + 4 + 8 + 8 + 1 + 8 + 4 + 4

// OMClientResponseSize is the framed size on the wire.
const OMClientResponseSize = 8 + ClientResponseSize

func (r *ClientResponse) String() string {
	return fmt.Sprintf("ClientResponse[type:%v client:%d ticker:%d coid:%v moid:%v side:%v price:%v exec:%v leaves:%v]",
		r.Type, r.ClientId, r.TickerId, r.ClientOrderId, r.MarketOrderId, r.Side, r.Price, r.ExecQty, r.LeavesQty)
}

// Encode packs the response into buf, which must hold at least
// ClientResponseSize bytes.
func (r *ClientResponse) Encode(buf []byte) {
	buf[0] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[1:], uint32(r.ClientId))
	binary.LittleEndian.PutUint32(buf[5:], uint32(r.TickerId))
	binary.LittleEndian.PutUint64(buf[9:], uint64(r.ClientOrderId))
	binary.LittleEndian.PutUint64(buf[17:], uint64(r.MarketOrderId))
	buf[25] = byte(r.Side)
	binary.LittleEndian.PutUint64(buf[26:], uint64(r.Price))
	binary.LittleEndian.PutUint32(buf[34:], uint32(r.ExecQty))
	binary.LittleEndian.PutUint32(buf[38:], uint32(r.LeavesQty))
}

// DecodeClientResponse unpacks a response from buf.
func DecodeClientResponse(buf []byte) ClientResponse {
	return ClientResponse{
		Type:          ClientResponseType(buf[0]),
		ClientId:      common.ClientId(binary.LittleEndian.Uint32(buf[1:])),
		TickerId:      common.TickerId(binary.LittleEndian.Uint32(buf[5:])),
		ClientOrderId: common.OrderId(binary.LittleEndian.Uint64(buf[9:])),
		MarketOrderId: common.OrderId(binary.LittleEndian.Uint64(buf[17:])),
		Side:          common.Side(buf[25]),
		Price:         common.Price(binary.LittleEndian.Uint64(buf[26:])),
		ExecQty:       common.Qty(binary.LittleEndian.Uint32(buf[34:])),
		LeavesQty:     common.Qty(binary.LittleEndian.Uint32(buf[38:])),
	}
}

// MarketUpdateType represents the kind of a market data record.
type MarketUpdateType uint8

const (
	UpdateInvalid       MarketUpdateType = 0
	UpdateClear         MarketUpdateType = 1
	UpdateAdd           MarketUpdateType = 2
	UpdateModify        MarketUpdateType = 3
	UpdateCancel        MarketUpdateType = 4
	UpdateTrade         MarketUpdateType = 5
	UpdateSnapshotStart MarketUpdateType = 6
	UpdateSnapshotEnd   MarketUpdateType = 7
)

func (t MarketUpdateType) String() string {
	switch t {
	case UpdateClear:
		return "CLEAR"
	case UpdateAdd:
		return "ADD"
	case UpdateModify:
		return "MODIFY"
	case UpdateCancel:
		return "CANCEL"
	case UpdateTrade:
		return "TRADE"
	case UpdateSnapshotStart:
		return "SNAPSHOT_START"
	case UpdateSnapshotEnd:
		return "SNAPSHOT_END"
	}
	return "INVALID"
}

// MarketUpdate is a single market data event. SNAPSHOT_START and
// SNAPSHOT_END carry the anchor incremental sequence number in the
// OrderId field.
type MarketUpdate struct {
	Type     MarketUpdateType
	OrderId  common.OrderId
	TickerId common.TickerId
	Side     common.Side
	Price    common.Price
	Qty      common.Qty
	Priority common.Priority
}

// MarketUpdateSize is the packed size of a MarketUpdate.
const MarketUpdateSize = 1 + 8 + 4 + 1 + 8 + 4 + 8

// SeqMarketUpdateSize is the framed size on the wire.
const SeqMarketUpdateSize = 8 + MarketUpdateSize

func (u *MarketUpdate) String() string {
	return fmt.Sprintf("MarketUpdate[type:%v ticker:%d oid:%v side:%v price:%v qty:%v prio:%d]",
		u.Type, u.TickerId, u.OrderId, u.Side, u.Price, u.Qty, u.Priority)
}

// Encode packs the update into buf, which must hold at least
// MarketUpdateSize bytes.
func (u *MarketUpdate) Encode(buf []byte) {
	buf[0] = byte(u.Type)
	binary.LittleEndian.PutUint64(buf[1:], uint64(u.OrderId))
	binary.LittleEndian.PutUint32(buf[9:], uint32(u.TickerId))
	buf[13] = byte(u.Side)
	binary.LittleEndian.PutUint64(buf[14:], uint64(u.Price))
	binary.LittleEndian.PutUint32(buf[22:], uint32(u.Qty))
	binary.LittleEndian.PutUint64(buf[26:], uint64(u.Priority))
}

// DecodeMarketUpdate unpacks an update from buf.
func DecodeMarketUpdate(buf []byte) MarketUpdate {
	return MarketUpdate{
		Type:     MarketUpdateType(buf[0]),
		OrderId:  common.OrderId(binary.LittleEndian.Uint64(buf[1:])),
		TickerId: common.TickerId(binary.LittleEndian.Uint32(buf[9:])),
		Side:     common.Side(buf[13]),
		Price:    common.Price(binary.LittleEndian.Uint64(buf[14:])),
		Qty:      common.Qty(binary.LittleEndian.Uint32(buf[22:])),
		Priority: common.Priority(binary.LittleEndian.Uint64(buf[26:])),
	}
}

// SeqMarketUpdate is a sequenced market update as published on the
// wire and consumed by the snapshot synthesizer.
type SeqMarketUpdate struct {
	SeqNum uint64
	Update MarketUpdate
}

// Encode packs the sequenced update into buf, which must hold at
// least SeqMarketUpdateSize bytes.
func (u *SeqMarketUpdate) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf, u.SeqNum)
	u.Update.Encode(buf[8:])
}

// DecodeSeqMarketUpdate unpacks a sequenced update from buf.
func DecodeSeqMarketUpdate(buf []byte) SeqMarketUpdate {
	return SeqMarketUpdate{
		SeqNum: binary.LittleEndian.Uint64(buf),
		Update: DecodeMarketUpdate(buf[8:]),
	}
}
