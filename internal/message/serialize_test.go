package message

import (
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.Unix(2000, 0) }
	t.Cleanup(func() { now = prev })
}

func sampleRequest(t *testing.T) Request {
	t.Helper()
	req, err := Parse([]byte(textXML))
	require.NoError(t, err)
	return req
}

func TestSentinelBypass(t *testing.T) {
	enc, err := Serialize(Empty())
	require.NoError(t, err)
	assert.Equal(t, Encoded{Text: "", Encrypt: false}, enc)

	enc, err = Serialize(Success())
	require.NoError(t, err)
	assert.Equal(t, Encoded{Text: "success", Encrypt: false}, enc)

	enc, err = Serialize(nil)
	require.NoError(t, err)
	assert.Equal(t, "", enc.Text)
	assert.False(t, enc.Encrypt)
}

func TestReplyAddressing(t *testing.T) {
	fixedNow(t)
	req := sampleRequest(t)

	replies := []Response{
		ReplyText(req, "hi"),
		ReplyImage(req, "m"),
		ReplyVoice(req, "m"),
		ReplyVideo(req, "m", "t", "d"),
		ReplyMusic(req, Music{ThumbMediaID: "th"}),
		ReplyNews(req, Article{Title: "a"}),
		ReplyTransfer(req, ""),
	}

	for _, r := range replies {
		h := r.(interface{ Head() *ReplyHeader }).Head()
		assert.Equal(t, req.Head().FromUser, h.ToUser, "%T", r)
		assert.Equal(t, req.Head().ToUser, h.FromUser, "%T", r)
		assert.Equal(t, int64(2000), h.CreatedAt, "%T", r)
	}
}

func TestSerializeText(t *testing.T) {
	fixedNow(t)
	enc, err := Serialize(ReplyText(sampleRequest(t), "echo <hi>"))
	require.NoError(t, err)

	assert.True(t, enc.Encrypt)
	assert.Equal(t, `<xml><ToUserName><![CDATA[u1]]></ToUserName><FromUserName><![CDATA[acct]]></FromUserName>`+
		`<CreateTime>2000</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[echo <hi>]]></Content></xml>`, enc.Text)

	// The reply must itself be a document the parser understands.
	root, err := parseTree([]byte(enc.Text))
	require.NoError(t, err)
	v, _ := root.Value("Content")
	assert.Equal(t, "echo <hi>", v)
}

func TestSerializeDropsCharactersXMLCannotCarry(t *testing.T) {
	fixedNow(t)
	req := sampleRequest(t)

	enc, err := Serialize(ReplyText(req, "a\x01b\x1fc\td\ne\uFFFEf"))
	require.NoError(t, err)

	var doc struct {
		Content string `xml:"Content"`
	}
	require.NoError(t, xml.Unmarshal([]byte(enc.Text), &doc))
	assert.Equal(t, "abc\td\nef", doc.Content)

	enc, err = Serialize(ReplyNews(req, Article{Title: "bad\xffutf8", Description: "\x00"}))
	require.NoError(t, err)
	require.NoError(t, xml.Unmarshal([]byte(enc.Text), new(struct{})))
	assert.Contains(t, enc.Text, "bad\uFFFDutf8")
}

func TestXMLSafeLeavesCleanTextAlone(t *testing.T) {
	for _, s := range []string{"", "plain", "多语言 😀", "tab\tnew\nline"} {
		assert.Equal(t, s, xmlSafe(s))
	}
}

func TestSerializeNews(t *testing.T) {
	fixedNow(t)
	enc, err := Serialize(ReplyNews(sampleRequest(t),
		Article{Title: "one", URL: "http://1"},
		Article{Title: "two", PicURL: "http://p"},
	))
	require.NoError(t, err)

	root, err := parseTree([]byte(enc.Text))
	require.NoError(t, err)
	count, _ := root.Value("ArticleCount")
	assert.Equal(t, "2", count)
	items := root.Child("Articles").Children
	require.Len(t, items, 2)
	title, _ := items[1].Value("Title")
	assert.Equal(t, "two", title)
}

func TestSerializeTransfer(t *testing.T) {
	fixedNow(t)
	req := sampleRequest(t)

	enc, err := Serialize(ReplyTransfer(req, ""))
	require.NoError(t, err)
	assert.Contains(t, enc.Text, "<MsgType><![CDATA[transfer_customer_service]]></MsgType>")
	assert.NotContains(t, enc.Text, "TransInfo")

	enc, err = Serialize(ReplyTransfer(req, "kf2001@acct"))
	require.NoError(t, err)
	assert.Contains(t, enc.Text, "<TransInfo><KfAccount><![CDATA[kf2001@acct]]></KfAccount></TransInfo>")
}

func TestSerializeMediaReplies(t *testing.T) {
	req := sampleRequest(t)

	enc, err := Serialize(ReplyVideo(req, "vid", "title", "desc"))
	require.NoError(t, err)
	assert.Contains(t, enc.Text, "<Video><MediaId><![CDATA[vid]]></MediaId>")

	enc, err = Serialize(ReplyMusic(req, Music{Title: "song", MusicURL: "http://m", ThumbMediaID: "th"}))
	require.NoError(t, err)
	assert.Contains(t, enc.Text, "<ThumbMediaId><![CDATA[th]]></ThumbMediaId>")
}

func TestSerializeRejectsInvalid(t *testing.T) {
	req := sampleRequest(t)
	tooMany := make([]Article, MaxArticles+1)

	tests := []struct {
		name string
		resp Response
	}{
		{"image without media", ReplyImage(req, "")},
		{"voice without media", ReplyVoice(req, "")},
		{"video without media", ReplyVideo(req, "", "t", "d")},
		{"music without thumb", ReplyMusic(req, Music{Title: "x"})},
		{"news without articles", ReplyNews(req)},
		{"news with too many articles", ReplyNews(req, tooMany...)},
		{"unaddressed text", &TextReply{Content: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(tt.resp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidReply))
		})
	}
}
