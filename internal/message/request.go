package message

import "strings"

// Request is a parsed inbound callback. The set of implementations is closed:
// the concrete types in this file, switched on by Kind and, for events,
// EventKind.
type Request interface {
	Kind() Kind
	Head() *Header
	isRequest()
}

// Event is a Request of KindEvent.
type Event interface {
	Request
	EventKind() EventKind
}

// Header carries the fields every callback has.
type Header struct {
	ToUser    string // ToUserName: the account the message was sent to
	FromUser  string // FromUserName: the sender's per-app id
	CreatedAt int64  // CreateTime, sender-supplied Unix seconds
	Raw       *Node  // whole parsed document
}

func (h *Header) Head() *Header { return h }
func (*Header) isRequest() {}

// Text is a user-typed text message.
type Text struct {
	Header
	MsgID   int64
	Content string
}

func (*Text) Kind() Kind { return KindText }

type Image struct {
	Header
	MsgID   int64
	PicURL  string
	MediaID string
}

func (*Image) Kind() Kind { return KindImage }

// Voice may carry the platform's speech recognition transcript.
type Voice struct {
	Header
	MsgID       int64
	MediaID     string
	Format      string
	Recognition string
}

func (*Voice) Kind() Kind { return KindVoice }

type Video struct {
	Header
	MsgID        int64
	MediaID      string
	ThumbMediaID string
}

func (*Video) Kind() Kind { return KindVideo }

type ShortVideo struct {
	Header
	MsgID        int64
	MediaID      string
	ThumbMediaID string
}

func (*ShortVideo) Kind() Kind { return KindShortVideo }

// Location is a location shared in the chat (not the periodic LOCATION event).
type Location struct {
	Header
	MsgID int64
	X     float64 // latitude
	Y     float64 // longitude
	Scale int
	Label string
}

func (*Location) Kind() Kind { return KindLocation }

type Link struct {
	Header
	MsgID       int64
	Title       string
	Description string
	URL         string
}

func (*Link) Kind() Kind { return KindLink }

// UnknownMessage is any MsgType the model does not recognise.
type UnknownMessage struct {
	Header
	MsgType  string // raw discriminant
	RawMsgID string // MsgId text if present
}

func (*UnknownMessage) Kind() Kind { return KindUnknown }

// EventHeader is shared by every event variant.
type EventHeader struct {
	Header
	Event EventKind
}

func (*EventHeader) Kind() Kind { return KindEvent }
func (e *EventHeader) EventKind() EventKind { return e.Event }

// qrScenePrefix marks subscribe events that came from a parametric QR code.
const qrScenePrefix = "qrscene_"

// SubscribeEvent carries EventKey and Ticket only when the user followed by
// scanning a parametric QR code.
type SubscribeEvent struct {
	EventHeader
	EventKey string
	Ticket   string
}

// SceneKey returns the QR scene value without the qrscene_ prefix.
func (e *SubscribeEvent) SceneKey() string {
	return strings.TrimPrefix(e.EventKey, qrScenePrefix)
}

type UnsubscribeEvent struct {
	EventHeader
}

// ScanEvent is a parametric QR scan by a user who already follows the account.
type ScanEvent struct {
	EventHeader
	EventKey string
	Ticket   string
}

// LocationEvent is the periodic geolocation report.
type LocationEvent struct {
	EventHeader
	Latitude  float64
	Longitude float64
	Precision float64
}

// MenuEvent is a CLICK or VIEW menu interaction.
type MenuEvent struct {
	EventHeader
	EventKey string // click key, or the URL for VIEW
	MenuID   string
}

// ScanCodeEvent is a scancode_push or scancode_waitmsg menu interaction.
type ScanCodeEvent struct {
	EventHeader
	EventKey   string
	ScanType   string
	ScanResult string
}

// PicEvent is one of the pic_* menu interactions.
type PicEvent struct {
	EventHeader
	EventKey   string
	Count      int
	PicMD5Sums []string
}

type LocationSelectEvent struct {
	EventHeader
	EventKey string
	X        float64
	Y        float64
	Scale    int
	Label    string
	PoiName  string
}

// ExpiryEvent covers qualification/naming verify success, annual_renew and
// verify_expired.
type ExpiryEvent struct {
	EventHeader
	ExpiredTime int64
}

// VerifyFailEvent covers qualification_verify_fail and naming_verify_fail.
type VerifyFailEvent struct {
	EventHeader
	FailTime   int64
	FailReason string
}

type TemplateSendJobFinishEvent struct {
	EventHeader
	MsgID  int64
	Status string
}

type MassSendJobFinishEvent struct {
	EventHeader
	MsgID       int64
	Status      string
	TotalCount  int
	FilterCount int
	SentCount   int
	ErrorCount  int
}

// UnknownEvent is any Event value the model does not recognise.
type UnknownEvent struct {
	EventHeader
	RawEvent string
}
