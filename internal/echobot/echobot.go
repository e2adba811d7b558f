// Package echobot is the built-in demo application: it answers text with
// text and replies to a few events from configuration.
package echobot

import (
	"context"
	"fmt"

	"github.com/mattjoyce/wxgate/internal/handler"
	"github.com/mattjoyce/wxgate/internal/message"
)

type Config struct {
	// Welcome is sent on subscribe; empty sends nothing.
	Welcome string
	// Prefix is prepended to echoed text.
	Prefix string
	// Clicks maps CLICK event keys to reply text. Unmapped keys echo the key.
	Clicks map[string]string
}

// Bot implements handler.Handler. Kinds it does not override answer Empty.
type Bot struct {
	handler.Base
	cfg Config
}

var _ handler.Handler = (*Bot)(nil)

func New(cfg Config) *Bot {
	return &Bot{cfg: cfg}
}

func (b *Bot) OnText(_ context.Context, m *message.Text) (message.Response, error) {
	if m.Content == "" {
		return message.Empty(), nil
	}
	return message.ReplyText(m, b.cfg.Prefix+m.Content), nil
}

func (b *Bot) OnVoice(_ context.Context, m *message.Voice) (message.Response, error) {
	if m.Recognition == "" {
		return message.Empty(), nil
	}
	return message.ReplyText(m, b.cfg.Prefix+m.Recognition), nil
}

func (b *Bot) OnLocation(_ context.Context, m *message.Location) (message.Response, error) {
	if m.Label != "" {
		return message.ReplyText(m, b.cfg.Prefix+m.Label), nil
	}
	return message.ReplyText(m, fmt.Sprintf("%s%.6f,%.6f", b.cfg.Prefix, m.X, m.Y)), nil
}

// OnSubscribe sends the welcome text, naming the QR scene when the user
// followed through a parametric code.
func (b *Bot) OnSubscribe(_ context.Context, e *message.SubscribeEvent) (message.Response, error) {
	if b.cfg.Welcome == "" {
		return message.Empty(), nil
	}
	if scene := e.SceneKey(); scene != "" {
		return message.ReplyText(e, fmt.Sprintf("%s (scene %s)", b.cfg.Welcome, scene)), nil
	}
	return message.ReplyText(e, b.cfg.Welcome), nil
}

func (b *Bot) OnUnsubscribe(context.Context, *message.UnsubscribeEvent) (message.Response, error) {
	return message.Success(), nil
}

func (b *Bot) OnClick(_ context.Context, e *message.MenuEvent) (message.Response, error) {
	if text, ok := b.cfg.Clicks[e.EventKey]; ok {
		return message.ReplyText(e, text), nil
	}
	if e.EventKey == "" {
		return message.Empty(), nil
	}
	return message.ReplyText(e, e.EventKey), nil
}

func (b *Bot) OnScanCodeWaitMsg(_ context.Context, e *message.ScanCodeEvent) (message.Response, error) {
	if e.ScanResult == "" {
		return message.Empty(), nil
	}
	return message.ReplyText(e, e.ScanResult), nil
}

func (b *Bot) OnTemplateSendJobFinish(context.Context, *message.TemplateSendJobFinishEvent) (message.Response, error) {
	return message.Success(), nil
}

func (b *Bot) OnMassSendJobFinish(context.Context, *message.MassSendJobFinishEvent) (message.Response, error) {
	return message.Success(), nil
}
