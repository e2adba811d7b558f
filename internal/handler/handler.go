// Package handler routes parsed requests to application callbacks.
//
// Handler has one method per request kind and per event kind. Applications
// embed Base, which answers every callback with message.Empty(), and override
// the methods they care about. Dispatch performs the two-level switch.
package handler

import (
	"context"

	"github.com/mattjoyce/wxgate/internal/message"
)

// Handler receives one callback per parsed request.
type Handler interface {
	OnText(ctx context.Context, m *message.Text) (message.Response, error)
	OnImage(ctx context.Context, m *message.Image) (message.Response, error)
	OnVoice(ctx context.Context, m *message.Voice) (message.Response, error)
	OnVideo(ctx context.Context, m *message.Video) (message.Response, error)
	OnShortVideo(ctx context.Context, m *message.ShortVideo) (message.Response, error)
	OnLocation(ctx context.Context, m *message.Location) (message.Response, error)
	OnLink(ctx context.Context, m *message.Link) (message.Response, error)
	OnUnknownMessage(ctx context.Context, m *message.UnknownMessage) (message.Response, error)

	OnSubscribe(ctx context.Context, e *message.SubscribeEvent) (message.Response, error)
	OnUnsubscribe(ctx context.Context, e *message.UnsubscribeEvent) (message.Response, error)
	OnScan(ctx context.Context, e *message.ScanEvent) (message.Response, error)
	OnLocationReport(ctx context.Context, e *message.LocationEvent) (message.Response, error)

	OnClick(ctx context.Context, e *message.MenuEvent) (message.Response, error)
	OnView(ctx context.Context, e *message.MenuEvent) (message.Response, error)
	OnScanCodePush(ctx context.Context, e *message.ScanCodeEvent) (message.Response, error)
	OnScanCodeWaitMsg(ctx context.Context, e *message.ScanCodeEvent) (message.Response, error)
	OnPicSysPhoto(ctx context.Context, e *message.PicEvent) (message.Response, error)
	OnPicPhotoOrAlbum(ctx context.Context, e *message.PicEvent) (message.Response, error)
	OnPicWeixin(ctx context.Context, e *message.PicEvent) (message.Response, error)
	OnLocationSelect(ctx context.Context, e *message.LocationSelectEvent) (message.Response, error)

	OnQualificationVerifySuccess(ctx context.Context, e *message.ExpiryEvent) (message.Response, error)
	OnQualificationVerifyFail(ctx context.Context, e *message.VerifyFailEvent) (message.Response, error)
	OnNamingVerifySuccess(ctx context.Context, e *message.ExpiryEvent) (message.Response, error)
	OnNamingVerifyFail(ctx context.Context, e *message.VerifyFailEvent) (message.Response, error)
	OnAnnualRenew(ctx context.Context, e *message.ExpiryEvent) (message.Response, error)
	OnVerifyExpired(ctx context.Context, e *message.ExpiryEvent) (message.Response, error)

	OnTemplateSendJobFinish(ctx context.Context, e *message.TemplateSendJobFinishEvent) (message.Response, error)
	OnMassSendJobFinish(ctx context.Context, e *message.MassSendJobFinishEvent) (message.Response, error)

	OnUnknownEvent(ctx context.Context, e *message.UnknownEvent) (message.Response, error)
}

// Base answers every callback with message.Empty().
type Base struct{}

var _ Handler = Base{}

func (Base) OnText(context.Context, *message.Text) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnImage(context.Context, *message.Image) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnVoice(context.Context, *message.Voice) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnVideo(context.Context, *message.Video) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnShortVideo(context.Context, *message.ShortVideo) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnLocation(context.Context, *message.Location) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnLink(context.Context, *message.Link) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnUnknownMessage(context.Context, *message.UnknownMessage) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnSubscribe(context.Context, *message.SubscribeEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnUnsubscribe(context.Context, *message.UnsubscribeEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnScan(context.Context, *message.ScanEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnLocationReport(context.Context, *message.LocationEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnClick(context.Context, *message.MenuEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnView(context.Context, *message.MenuEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnScanCodePush(context.Context, *message.ScanCodeEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnScanCodeWaitMsg(context.Context, *message.ScanCodeEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnPicSysPhoto(context.Context, *message.PicEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnPicPhotoOrAlbum(context.Context, *message.PicEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnPicWeixin(context.Context, *message.PicEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnLocationSelect(context.Context, *message.LocationSelectEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnQualificationVerifySuccess(context.Context, *message.ExpiryEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnQualificationVerifyFail(context.Context, *message.VerifyFailEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnNamingVerifySuccess(context.Context, *message.ExpiryEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnNamingVerifyFail(context.Context, *message.VerifyFailEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnAnnualRenew(context.Context, *message.ExpiryEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnVerifyExpired(context.Context, *message.ExpiryEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnTemplateSendJobFinish(context.Context, *message.TemplateSendJobFinishEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnMassSendJobFinish(context.Context, *message.MassSendJobFinishEvent) (message.Response, error) {
	return message.Empty(), nil
}

func (Base) OnUnknownEvent(context.Context, *message.UnknownEvent) (message.Response, error) {
	return message.Empty(), nil
}
