package message

import "time"

// Response is a reply to a Request. Concrete replies are XML documents
// addressed back to the sender; EmptyReply and SuccessReply are bare bodies
// that acknowledge the callback and stop platform retries.
type Response interface {
	isResponse()
}

// ReplyHeader addresses a concrete reply.
type ReplyHeader struct {
	ToUser    string
	FromUser  string
	CreatedAt int64
}

// Head returns the reply's addressing.
func (h *ReplyHeader) Head() *ReplyHeader { return h }

func (*ReplyHeader) isResponse() {}

// MaxArticles is the platform's limit on items in a news reply.
const MaxArticles = 8

// MsgTransferCustomerService is the MsgType of a TransferReply.
const MsgTransferCustomerService = "transfer_customer_service"

type TextReply struct {
	ReplyHeader
	Content string
}

type ImageReply struct {
	ReplyHeader
	MediaID string
}

type VoiceReply struct {
	ReplyHeader
	MediaID string
}

type VideoReply struct {
	ReplyHeader
	MediaID     string
	Title       string
	Description string
}

// Music is the payload of a MusicReply. ThumbMediaID is mandatory.
type Music struct {
	Title        string
	Description  string
	MusicURL     string
	HQMusicURL   string
	ThumbMediaID string
}

type MusicReply struct {
	ReplyHeader
	Music Music
}

// Article is one item of a news reply.
type Article struct {
	Title       string
	Description string
	PicURL      string
	URL         string
}

// NewsReply holds between 1 and MaxArticles articles.
type NewsReply struct {
	ReplyHeader
	Articles []Article
}

// TransferReply hands the conversation to the customer service system,
// optionally to a specific KfAccount.
type TransferReply struct {
	ReplyHeader
	KfAccount string
}

// EmptyReply serializes to an empty body.
type EmptyReply struct{}

func (EmptyReply) isResponse() {}

// SuccessReply serializes to the literal "success".
type SuccessReply struct{}

func (SuccessReply) isResponse() {}

// Empty returns the empty sentinel reply.
func Empty() Response { return EmptyReply{} }

// Success returns the "success" sentinel reply.
func Success() Response { return SuccessReply{} }

// now is replaced in tests.
var now = time.Now

func replyTo(req Request) ReplyHeader {
	h := req.Head()
	return ReplyHeader{
		ToUser:    h.FromUser,
		FromUser:  h.ToUser,
		CreatedAt: now().Unix(),
	}
}

func ReplyText(req Request, content string) *TextReply {
	return &TextReply{ReplyHeader: replyTo(req), Content: content}
}

func ReplyImage(req Request, mediaID string) *ImageReply {
	return &ImageReply{ReplyHeader: replyTo(req), MediaID: mediaID}
}

func ReplyVoice(req Request, mediaID string) *VoiceReply {
	return &VoiceReply{ReplyHeader: replyTo(req), MediaID: mediaID}
}

func ReplyVideo(req Request, mediaID, title, description string) *VideoReply {
	return &VideoReply{ReplyHeader: replyTo(req), MediaID: mediaID, Title: title, Description: description}
}

func ReplyMusic(req Request, music Music) *MusicReply {
	return &MusicReply{ReplyHeader: replyTo(req), Music: music}
}

func ReplyNews(req Request, articles ...Article) *NewsReply {
	return &NewsReply{ReplyHeader: replyTo(req), Articles: articles}
}

// ReplyTransfer hands the conversation to customer service. kfAccount may be
// empty to let the platform pick an agent.
func ReplyTransfer(req Request, kfAccount string) *TransferReply {
	return &TransferReply{ReplyHeader: replyTo(req), KfAccount: kfAccount}
}
