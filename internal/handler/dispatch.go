package handler

import (
	"context"

	"github.com/mattjoyce/wxgate/internal/message"
)

// Dispatch routes req to the matching callback of h: first on Kind, then for
// events on EventKind. A request whose concrete type disagrees with its
// discriminant goes to OnUnknownMessage or OnUnknownEvent. A nil response is
// returned as message.Empty().
func Dispatch(ctx context.Context, h Handler, req message.Request) (message.Response, error) {
	resp, err := dispatch(ctx, h, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return message.Empty(), nil
	}
	return resp, nil
}

func dispatch(ctx context.Context, h Handler, req message.Request) (message.Response, error) {
	switch req.Kind() {
	case message.KindText:
		return invoke(ctx, req, h.OnText, h)
	case message.KindImage:
		return invoke(ctx, req, h.OnImage, h)
	case message.KindVoice:
		return invoke(ctx, req, h.OnVoice, h)
	case message.KindVideo:
		return invoke(ctx, req, h.OnVideo, h)
	case message.KindShortVideo:
		return invoke(ctx, req, h.OnShortVideo, h)
	case message.KindLocation:
		return invoke(ctx, req, h.OnLocation, h)
	case message.KindLink:
		return invoke(ctx, req, h.OnLink, h)
	case message.KindEvent:
		ev, ok := req.(message.Event)
		if !ok {
			return unknown(ctx, h, req)
		}
		return dispatchEvent(ctx, h, ev)
	default:
		return unknown(ctx, h, req)
	}
}

func dispatchEvent(ctx context.Context, h Handler, ev message.Event) (message.Response, error) {
	switch ev.EventKind() {
	case message.EventSubscribe:
		return invoke(ctx, ev, h.OnSubscribe, h)
	case message.EventUnsubscribe:
		return invoke(ctx, ev, h.OnUnsubscribe, h)
	case message.EventScan:
		return invoke(ctx, ev, h.OnScan, h)
	case message.EventLocation:
		return invoke(ctx, ev, h.OnLocationReport, h)
	case message.EventClick:
		return invoke(ctx, ev, h.OnClick, h)
	case message.EventView:
		return invoke(ctx, ev, h.OnView, h)
	case message.EventScanCodePush:
		return invoke(ctx, ev, h.OnScanCodePush, h)
	case message.EventScanCodeWaitMsg:
		return invoke(ctx, ev, h.OnScanCodeWaitMsg, h)
	case message.EventPicSysPhoto:
		return invoke(ctx, ev, h.OnPicSysPhoto, h)
	case message.EventPicPhotoOrAlbum:
		return invoke(ctx, ev, h.OnPicPhotoOrAlbum, h)
	case message.EventPicWeixin:
		return invoke(ctx, ev, h.OnPicWeixin, h)
	case message.EventLocationSelect:
		return invoke(ctx, ev, h.OnLocationSelect, h)
	case message.EventQualificationVerifySuccess:
		return invoke(ctx, ev, h.OnQualificationVerifySuccess, h)
	case message.EventQualificationVerifyFail:
		return invoke(ctx, ev, h.OnQualificationVerifyFail, h)
	case message.EventNamingVerifySuccess:
		return invoke(ctx, ev, h.OnNamingVerifySuccess, h)
	case message.EventNamingVerifyFail:
		return invoke(ctx, ev, h.OnNamingVerifyFail, h)
	case message.EventAnnualRenew:
		return invoke(ctx, ev, h.OnAnnualRenew, h)
	case message.EventVerifyExpired:
		return invoke(ctx, ev, h.OnVerifyExpired, h)
	case message.EventTemplateSendJobFinish:
		return invoke(ctx, ev, h.OnTemplateSendJobFinish, h)
	case message.EventMassSendJobFinish:
		return invoke(ctx, ev, h.OnMassSendJobFinish, h)
	default:
		return unknown(ctx, h, ev)
	}
}

// invoke calls fn when req has the concrete type fn expects.
func invoke[T message.Request](ctx context.Context, req message.Request, fn func(context.Context, T) (message.Response, error), h Handler) (message.Response, error) {
	m, ok := req.(T)
	if !ok {
		return unknown(ctx, h, req)
	}
	return fn(ctx, m)
}

func unknown(ctx context.Context, h Handler, req message.Request) (message.Response, error) {
	switch m := req.(type) {
	case *message.UnknownMessage:
		return h.OnUnknownMessage(ctx, m)
	case *message.UnknownEvent:
		return h.OnUnknownEvent(ctx, m)
	}

	head := req.Head()
	if ev, ok := req.(message.Event); ok {
		return h.OnUnknownEvent(ctx, &message.UnknownEvent{
			EventHeader: message.EventHeader{Header: *head, Event: message.EventUnknown},
			RawEvent:    string(ev.EventKind()),
		})
	}
	return h.OnUnknownMessage(ctx, &message.UnknownMessage{Header: *head, MsgType: string(req.Kind())})
}
