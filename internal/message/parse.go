package message

import (
	"strconv"
	"strings"

	"github.com/mattjoyce/wxgate/internal/fault"
)

// Parse decodes a decrypted callback document into a Request.
//
// Parse is total over well-formed XML that carries a MsgType: unrecognised
// MsgType and Event values produce UnknownMessage and UnknownEvent. It fails
// with fault.MalformedMessage when the input is not XML, has no MsgType, or a
// recognised kind lacks one of its required fields.
func Parse(data []byte) (Request, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, fault.New(fault.MalformedMessage, "invalid xml: "+err.Error(), nil)
	}

	rawType, ok := root.Token("MsgType")
	if !ok || rawType == "" {
		return nil, fault.New(fault.MalformedMessage, "missing MsgType", map[string]string{"field": "MsgType"})
	}

	kind := ParseKind(rawType)
	if kind == KindUnknown {
		return parseUnknown(root, rawType), nil
	}

	f := newFields(root, string(kind))
	h := Header{
		ToUser:    f.tok("ToUserName"),
		FromUser:  f.tok("FromUserName"),
		CreatedAt: f.int64("CreateTime"),
		Raw:       root,
	}

	var req Request
	switch kind {
	case KindText:
		req = &Text{Header: h, MsgID: f.int64("MsgId"), Content: f.str("Content")}
	case KindImage:
		req = &Image{Header: h, MsgID: f.int64("MsgId"), PicURL: f.tok("PicUrl"), MediaID: f.tok("MediaId")}
	case KindVoice:
		req = &Voice{
			Header:      h,
			MsgID:       f.int64("MsgId"),
			MediaID:     f.tok("MediaId"),
			Format:      f.tok("Format"),
			Recognition: f.opt("Recognition"),
		}
	case KindVideo:
		req = &Video{Header: h, MsgID: f.int64("MsgId"), MediaID: f.tok("MediaId"), ThumbMediaID: f.tok("ThumbMediaId")}
	case KindShortVideo:
		req = &ShortVideo{Header: h, MsgID: f.int64("MsgId"), MediaID: f.tok("MediaId"), ThumbMediaID: f.tok("ThumbMediaId")}
	case KindLocation:
		req = &Location{
			Header: h,
			MsgID:  f.int64("MsgId"),
			X:      f.float("Location_X"),
			Y:      f.float("Location_Y"),
			Scale:  f.int("Scale"),
			Label:  f.str("Label"),
		}
	case KindLink:
		req = &Link{
			Header:      h,
			MsgID:       f.int64("MsgId"),
			Title:       f.str("Title"),
			Description: f.str("Description"),
			URL:         f.tok("Url"),
		}
	case KindEvent:
		req = parseEvent(f, h)
	}

	if f.err != nil {
		return nil, f.err
	}
	return req, nil
}

func parseUnknown(root *Node, rawType string) *UnknownMessage {
	m := root.Map()
	created, _ := strconv.ParseInt(m["CreateTime"], 10, 64)
	rawID, _ := root.Token("MsgId")
	return &UnknownMessage{
		Header: Header{
			ToUser:    m["ToUserName"],
			FromUser:  m["FromUserName"],
			CreatedAt: created,
			Raw:       root,
		},
		MsgType:  rawType,
		RawMsgID: rawID,
	}
}

func parseEvent(f *fields, h Header) Request {
	rawEvent := f.tok("Event")
	if f.err != nil {
		return nil
	}

	kind := ParseEventKind(rawEvent)
	eh := EventHeader{Header: h, Event: kind}
	f.what = "event " + rawEvent

	switch kind {
	case EventSubscribe:
		return &SubscribeEvent{EventHeader: eh, EventKey: f.optTok("EventKey"), Ticket: f.optTok("Ticket")}
	case EventUnsubscribe:
		return &UnsubscribeEvent{EventHeader: eh}
	case EventScan:
		return &ScanEvent{EventHeader: eh, EventKey: f.tok("EventKey"), Ticket: f.optTok("Ticket")}
	case EventLocation:
		return &LocationEvent{
			EventHeader: eh,
			Latitude:    f.float("Latitude"),
			Longitude:   f.float("Longitude"),
			Precision:   f.float("Precision"),
		}
	case EventClick, EventView:
		return &MenuEvent{EventHeader: eh, EventKey: f.tok("EventKey"), MenuID: f.optTok("MenuId")}
	case EventScanCodePush, EventScanCodeWaitMsg:
		info := f.sub("ScanCodeInfo")
		return &ScanCodeEvent{
			EventHeader: eh,
			EventKey:    f.tok("EventKey"),
			ScanType:    info.tok("ScanType"),
			ScanResult:  info.str("ScanResult"),
		}
	case EventPicSysPhoto, EventPicPhotoOrAlbum, EventPicWeixin:
		info := f.sub("SendPicsInfo")
		ev := &PicEvent{EventHeader: eh, EventKey: f.tok("EventKey"), Count: info.int("Count")}
		if list := info.node.Child("PicList"); list != nil {
			for _, item := range list.Children {
				if sum, ok := item.Token("PicMd5Sum"); ok {
					ev.PicMD5Sums = append(ev.PicMD5Sums, sum)
				}
			}
		}
		return ev
	case EventLocationSelect:
		info := f.sub("SendLocationInfo")
		return &LocationSelectEvent{
			EventHeader: eh,
			EventKey:    f.tok("EventKey"),
			X:           info.float("Location_X"),
			Y:           info.float("Location_Y"),
			Scale:       info.int("Scale"),
			Label:       info.str("Label"),
			PoiName:     info.opt("Poiname"),
		}
	case EventQualificationVerifySuccess, EventNamingVerifySuccess, EventAnnualRenew, EventVerifyExpired:
		return &ExpiryEvent{EventHeader: eh, ExpiredTime: f.int64("ExpiredTime")}
	case EventQualificationVerifyFail, EventNamingVerifyFail:
		return &VerifyFailEvent{EventHeader: eh, FailTime: f.int64("FailTime"), FailReason: f.str("FailReason")}
	case EventTemplateSendJobFinish:
		return &TemplateSendJobFinishEvent{EventHeader: eh, MsgID: f.int64("MsgID"), Status: f.tok("Status")}
	case EventMassSendJobFinish:
		return &MassSendJobFinishEvent{
			EventHeader: eh,
			MsgID:       f.int64("MsgID"),
			Status:      f.tok("Status"),
			TotalCount:  f.int("TotalCount"),
			FilterCount: f.int("FilterCount"),
			SentCount:   f.int("SentCount"),
			ErrorCount:  f.int("ErrorCount"),
		}
	default:
		return &UnknownEvent{EventHeader: eh, RawEvent: rawEvent}
	}
}

// fields reads required and optional values off one node. The first failure
// is kept in err and later reads become no-ops returning zero values.
type fields struct {
	node   *Node
	what   string
	prefix string
	err    error
	parent *fields
}

func newFields(n *Node, what string) *fields {
	return &fields{node: n, what: what}
}

// sub returns a reader over a required nested element sharing this reader's
// error state.
func (f *fields) sub(name string) *fields {
	s := &fields{node: f.node.Child(name), what: f.what, prefix: f.prefix + name + ".", parent: f}
	if s.node == nil {
		f.fail(name, "missing")
	}
	return s
}

func (f *fields) root() *fields {
	for f.parent != nil {
		f = f.parent
	}
	return f
}

func (f *fields) failed() bool { return f.root().err != nil }

func (f *fields) fail(name, reason string) {
	r := f.root()
	if r.err != nil {
		return
	}
	field := f.prefix + name
	r.err = fault.New(fault.MalformedMessage, r.what+": "+reason+" "+field, map[string]string{
		"field": field,
		"kind":  r.what,
	})
}

// str returns a required value exactly as received.
func (f *fields) str(name string) string {
	if f.failed() || f.node == nil {
		return ""
	}
	v, ok := f.node.Value(name)
	if !ok {
		f.fail(name, "missing")
		return ""
	}
	return v
}

// tok is str for identifiers and discriminants: surrounding whitespace is
// dropped.
func (f *fields) tok(name string) string {
	return strings.TrimSpace(f.str(name))
}

func (f *fields) optTok(name string) string {
	return strings.TrimSpace(f.opt(name))
}

func (f *fields) opt(name string) string {
	if f.node == nil {
		return ""
	}
	v, _ := f.node.Value(name)
	return v
}

func (f *fields) int64(name string) int64 {
	v := f.str(name)
	if f.failed() {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		f.fail(name, "invalid integer")
		return 0
	}
	return n
}

func (f *fields) int(name string) int {
	return int(f.int64(name))
}

func (f *fields) float(name string) float64 {
	v := f.str(name)
	if f.failed() {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		f.fail(name, "invalid number")
		return 0
	}
	return n
}
