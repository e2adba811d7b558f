package message

import "strings"

// Kind is the MsgType discriminant of an inbound request.
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindVoice      Kind = "voice"
	KindVideo      Kind = "video"
	KindShortVideo Kind = "shortvideo"
	KindLocation   Kind = "location"
	KindLink       Kind = "link"
	KindEvent      Kind = "event"
	KindUnknown    Kind = "unknown"
)

var knownKinds = []Kind{
	KindText, KindImage, KindVoice, KindVideo, KindShortVideo,
	KindLocation, KindLink, KindEvent,
}

// ParseKind maps a raw MsgType value (any case) to a Kind. Unrecognised values
// map to KindUnknown.
func ParseKind(raw string) Kind {
	raw = strings.TrimSpace(raw)
	for _, k := range knownKinds {
		if strings.EqualFold(raw, string(k)) {
			return k
		}
	}
	return KindUnknown
}

// EventKind is the Event discriminant of an event request. Values keep the
// platform's spelling.
type EventKind string

const (
	EventSubscribe   EventKind = "subscribe"
	EventUnsubscribe EventKind = "unsubscribe"

	EventScan     EventKind = "SCAN"
	EventLocation EventKind = "LOCATION"

	EventClick           EventKind = "CLICK"
	EventView            EventKind = "VIEW"
	EventScanCodePush    EventKind = "scancode_push"
	EventScanCodeWaitMsg EventKind = "scancode_waitmsg"
	EventPicSysPhoto     EventKind = "pic_sysphoto"
	EventPicPhotoOrAlbum EventKind = "pic_photo_or_album"
	EventPicWeixin       EventKind = "pic_weixin"
	EventLocationSelect  EventKind = "location_select"

	EventQualificationVerifySuccess EventKind = "qualification_verify_success"
	EventQualificationVerifyFail    EventKind = "qualification_verify_fail"
	EventNamingVerifySuccess        EventKind = "naming_verify_success"
	EventNamingVerifyFail           EventKind = "naming_verify_fail"
	EventAnnualRenew                EventKind = "annual_renew"
	EventVerifyExpired              EventKind = "verify_expired"

	EventTemplateSendJobFinish EventKind = "TEMPLATESENDJOBFINISH"
	EventMassSendJobFinish     EventKind = "MASSSENDJOBFINISH"

	EventUnknown EventKind = "unknown"
)

var knownEventKinds = []EventKind{
	EventSubscribe, EventUnsubscribe,
	EventScan, EventLocation,
	EventClick, EventView, EventScanCodePush, EventScanCodeWaitMsg,
	EventPicSysPhoto, EventPicPhotoOrAlbum, EventPicWeixin, EventLocationSelect,
	EventQualificationVerifySuccess, EventQualificationVerifyFail,
	EventNamingVerifySuccess, EventNamingVerifyFail,
	EventAnnualRenew, EventVerifyExpired,
	EventTemplateSendJobFinish, EventMassSendJobFinish,
}

// ParseEventKind maps a raw Event value (any case) to an EventKind.
// Unrecognised values map to EventUnknown.
func ParseEventKind(raw string) EventKind {
	raw = strings.TrimSpace(raw)
	for _, k := range knownEventKinds {
		if strings.EqualFold(raw, string(k)) {
			return k
		}
	}
	return EventUnknown
}

// EventKinds returns the recognised event kinds in declaration order.
func EventKinds() []EventKind {
	return append([]EventKind(nil), knownEventKinds...)
}
