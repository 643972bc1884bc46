package protocol

import (
	"errors"

	"github.com/google/uuid"
)

// ServiceName is the well-known name the helper is addressed by.
const ServiceName = "com.stonerl.Thaw.MenuBarItemService"

// Version is the frame format version written by this package.
const Version byte = 1

var (
	// ErrMalformedFrame reports a byte sequence that cannot be decoded. The
	// connection it arrived on must be dropped.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrProtocolViolation reports a well-formed message that the receiver's
	// state does not permit.
	ErrProtocolViolation = errors.New("protocol violation")
)

// Token correlates a response with the request that produced it.
type Token uuid.UUID

// NewToken returns a fresh random token.
func NewToken() Token {
	return Token(uuid.New())
}

func (t Token) String() string {
	return uuid.UUID(t).String()
}

// Discriminant tags the variant carried by a frame.
type Discriminant byte

const (
	DiscStartRequest      Discriminant = 0x01
	DiscSourcePIDRequest  Discriminant = 0x02
	DiscStartResponse     Discriminant = 0x81
	DiscSourcePIDResponse Discriminant = 0x82

	responseBit Discriminant = 0x80
)

// IsResponse reports whether d tags a response variant.
func (d Discriminant) IsResponse() bool {
	return d&responseBit != 0
}

func (d Discriminant) String() string {
	switch d {
	case DiscStartRequest:
		return "start"
	case DiscSourcePIDRequest:
		return "sourcePID"
	case DiscStartResponse:
		return "start-ack"
	case DiscSourcePIDResponse:
		return "sourcePID-reply"
	default:
		return "unknown"
	}
}

// Message is implemented only by the four variants below.
type Message interface {
	Discriminant() Discriminant
	sealed()
}

// Request is a message sent from the main process to the helper.
type Request interface {
	Message
	request()
}

// Response is a message sent from the helper to the main process.
type Response interface {
	Message
	response()
}

// StartRequest opens or confirms a session.
type StartRequest struct{}

// SourcePIDRequest asks for the owning process of Window.
type SourcePIDRequest struct {
	Window WindowInfo
}

// StartResponse acknowledges a StartRequest.
type StartResponse struct{}

// SourcePIDResponse carries the resolved owner.
type SourcePIDResponse struct {
	Owner Owner
}

func (StartRequest) Discriminant() Discriminant      { return DiscStartRequest }
func (SourcePIDRequest) Discriminant() Discriminant  { return DiscSourcePIDRequest }
func (StartResponse) Discriminant() Discriminant     { return DiscStartResponse }
func (SourcePIDResponse) Discriminant() Discriminant { return DiscSourcePIDResponse }

func (StartRequest) sealed()      {}
func (SourcePIDRequest) sealed()  {}
func (StartResponse) sealed()     {}
func (SourcePIDResponse) sealed() {}

func (StartRequest) request()       {}
func (SourcePIDRequest) request()   {}
func (StartResponse) response()     {}
func (SourcePIDResponse) response() {}

// Matches reports whether resp is the variant that answers req.
func Matches(req Request, resp Response) bool {
	if req == nil || resp == nil {
		return false
	}
	return req.Discriminant()|responseBit == resp.Discriminant()
}
