package message

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SuccessBody is the body of SuccessReply.
const SuccessBody = "success"

// Encoded is a serialized reply. Encrypt is false for the sentinels, which must
// reach the platform unmodified.
type Encoded struct {
	Text    string
	Encrypt bool
}

// ErrInvalidReply is wrapped by Serialize when a reply lacks a mandatory field.
var ErrInvalidReply = errors.New("invalid reply")

type cdata struct {
	Value string `xml:",cdata"`
}

// cd wraps s for a CDATA section, dropping characters XML 1.0 cannot carry
// (control characters other than tab, CR and LF, U+FFFE and U+FFFF). Invalid
// UTF-8 becomes U+FFFD. The platform rejects documents containing either.
func cd(s string) cdata {
	return cdata{Value: xmlSafe(s)}
}

func xmlSafe(s string) string {
	clean := utf8.ValidString(s)
	for _, r := range s {
		if !isXMLChar(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r < 0x20:
		return false
	case r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	default:
		return r >= 0x10000 && r <= 0x10FFFF
	}
}

type mediaXML struct {
	MediaID cdata `xml:"MediaId"`
}

type videoXML struct {
	MediaID     cdata `xml:"MediaId"`
	Title       cdata `xml:"Title"`
	Description cdata `xml:"Description"`
}

type musicXML struct {
	Title        cdata `xml:"Title"`
	Description  cdata `xml:"Description"`
	MusicURL     cdata `xml:"MusicUrl"`
	HQMusicURL   cdata `xml:"HQMusicUrl"`
	ThumbMediaID cdata `xml:"ThumbMediaId"`
}

type articleXML struct {
	Title       cdata `xml:"Title"`
	Description cdata `xml:"Description"`
	PicURL      cdata `xml:"PicUrl"`
	URL         cdata `xml:"Url"`
}

type articlesXML struct {
	Items []articleXML `xml:"item"`
}

type transInfoXML struct {
	KfAccount cdata `xml:"KfAccount"`
}

type replyXML struct {
	XMLName      xml.Name      `xml:"xml"`
	ToUserName   cdata         `xml:"ToUserName"`
	FromUserName cdata         `xml:"FromUserName"`
	CreateTime   int64         `xml:"CreateTime"`
	MsgType      cdata         `xml:"MsgType"`
	Content      *cdata        `xml:"Content,omitempty"`
	Image        *mediaXML     `xml:"Image,omitempty"`
	Voice        *mediaXML     `xml:"Voice,omitempty"`
	Video        *videoXML     `xml:"Video,omitempty"`
	Music        *musicXML     `xml:"Music,omitempty"`
	ArticleCount int           `xml:"ArticleCount,omitempty"`
	Articles     *articlesXML  `xml:"Articles,omitempty"`
	TransInfo    *transInfoXML `xml:"TransInfo,omitempty"`
}

// Serialize renders a reply. EmptyReply and SuccessReply (and a nil Response)
// bypass XML. Concrete replies are checked for the fields the platform
// requires.
func Serialize(resp Response) (Encoded, error) {
	var doc replyXML
	switch r := resp.(type) {
	case nil, EmptyReply, *EmptyReply:
		return Encoded{}, nil
	case SuccessReply, *SuccessReply:
		return Encoded{Text: SuccessBody}, nil
	case *TextReply:
		doc = newReplyXML(&r.ReplyHeader, "text")
		content := cd(r.Content)
		doc.Content = &content
	case *ImageReply:
		if r.MediaID == "" {
			return Encoded{}, invalid("image", "MediaId")
		}
		doc = newReplyXML(&r.ReplyHeader, "image")
		doc.Image = &mediaXML{MediaID: cd(r.MediaID)}
	case *VoiceReply:
		if r.MediaID == "" {
			return Encoded{}, invalid("voice", "MediaId")
		}
		doc = newReplyXML(&r.ReplyHeader, "voice")
		doc.Voice = &mediaXML{MediaID: cd(r.MediaID)}
	case *VideoReply:
		if r.MediaID == "" {
			return Encoded{}, invalid("video", "MediaId")
		}
		doc = newReplyXML(&r.ReplyHeader, "video")
		doc.Video = &videoXML{
			MediaID:     cd(r.MediaID),
			Title:       cd(r.Title),
			Description: cd(r.Description),
		}
	case *MusicReply:
		if r.Music.ThumbMediaID == "" {
			return Encoded{}, invalid("music", "ThumbMediaId")
		}
		doc = newReplyXML(&r.ReplyHeader, "music")
		doc.Music = &musicXML{
			Title:        cd(r.Music.Title),
			Description:  cd(r.Music.Description),
			MusicURL:     cd(r.Music.MusicURL),
			HQMusicURL:   cd(r.Music.HQMusicURL),
			ThumbMediaID: cd(r.Music.ThumbMediaID),
		}
	case *NewsReply:
		if n := len(r.Articles); n == 0 || n > MaxArticles {
			return Encoded{}, fmt.Errorf("%w: news reply has %d articles, want 1..%d", ErrInvalidReply, n, MaxArticles)
		}
		doc = newReplyXML(&r.ReplyHeader, "news")
		doc.ArticleCount = len(r.Articles)
		doc.Articles = &articlesXML{Items: make([]articleXML, 0, len(r.Articles))}
		for _, a := range r.Articles {
			doc.Articles.Items = append(doc.Articles.Items, articleXML{
				Title:       cd(a.Title),
				Description: cd(a.Description),
				PicURL:      cd(a.PicURL),
				URL:         cd(a.URL),
			})
		}
	case *TransferReply:
		doc = newReplyXML(&r.ReplyHeader, MsgTransferCustomerService)
		if r.KfAccount != "" {
			doc.TransInfo = &transInfoXML{KfAccount: cd(r.KfAccount)}
		}
	default:
		return Encoded{}, fmt.Errorf("%w: unsupported reply type %T", ErrInvalidReply, resp)
	}

	if doc.ToUserName.Value == "" || doc.FromUserName.Value == "" {
		return Encoded{}, fmt.Errorf("%w: %s reply is not addressed", ErrInvalidReply, doc.MsgType.Value)
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return Encoded{}, fmt.Errorf("marshal %s reply: %w", doc.MsgType.Value, err)
	}
	return Encoded{Text: string(out), Encrypt: true}, nil
}

func newReplyXML(h *ReplyHeader, msgType string) replyXML {
	return replyXML{
		ToUserName:   cd(h.ToUser),
		FromUserName: cd(h.FromUser),
		CreateTime:   h.CreatedAt,
		MsgType:      cd(msgType),
	}
}

func invalid(kind, field string) error {
	return fmt.Errorf("%w: %s reply missing %s", ErrInvalidReply, kind, field)
}
