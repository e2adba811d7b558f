package webhook

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/dedup"
	"github.com/mattjoyce/wxgate/internal/echobot"
	"github.com/mattjoyce/wxgate/internal/fault"
	"github.com/mattjoyce/wxgate/internal/message"
	"github.com/mattjoyce/wxgate/internal/msgcrypt"
)

const (
	testToken  = "tok"
	testAppID  = "wx123"
	testAESKey = "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFG"
)

const textXML = `<xml><ToUserName><![CDATA[acct]]></ToUserName><FromUserName><![CDATA[u1]]></FromUserName>` +
	`<CreateTime>1000</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[hello]]></Content>` +
	`<MsgId>555</MsgId></xml>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProcessor records the params it was called with.
type stubProcessor struct {
	params center.Params
	body   []byte
	res    *center.Result
	err    error
}

func (p *stubProcessor) Process(_ context.Context, params center.Params, body []byte) (*center.Result, error) {
	p.params = params
	p.body = body
	return p.res, p.err
}

type stubVerifier struct{}

func (stubVerifier) VerifyURL(signature, _, _, echostr string) (string, error) {
	if signature != "good" {
		return "", errors.New("signature mismatch")
	}
	return echostr, nil
}

func newServer(t *testing.T, p Processor, maxBody int64) http.Handler {
	t.Helper()
	s, err := New(Config{
		Listen: "127.0.0.1:0",
		Endpoints: []Endpoint{{
			Path:        "/wx/main",
			App:         "main",
			MaxBodySize: maxBody,
			Processor:   p,
			Verifier:    stubVerifier{},
		}},
	}, quietLogger())
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVerifyHandshake(t *testing.T) {
	h := newServer(t, &stubProcessor{}, 0)

	rec := do(h, http.MethodGet, "/wx/main?signature=good&timestamp=1&nonce=n&echostr=hello123", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello123", rec.Body.String())
	assert.Equal(t, contentTypeText, rec.Header().Get("Content-Type"))

	rec = do(h, http.MethodGet, "/wx/main?signature=bad&timestamp=1&nonce=n&echostr=hello123", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", rec.Body.String())
}

func TestCallbackSignatureSelection(t *testing.T) {
	p := &stubProcessor{res: &center.Result{Body: []byte("success"), Reply: message.Encoded{Text: "success"}}}
	h := newServer(t, p, 0)

	rec := do(h, http.MethodPost, "/wx/main?signature=plain&timestamp=100&nonce=n1&openid=o", textXML)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, center.Params{Signature: "plain", Timestamp: "100", Nonce: "n1"}, p.params)
	assert.Equal(t, textXML, string(p.body))
	assert.Equal(t, "success", rec.Body.String())
	assert.Equal(t, contentTypeText, rec.Header().Get("Content-Type"))

	rec = do(h, http.MethodPost, "/wx/main?signature=plain&msg_signature=safe&encrypt_type=aes&timestamp=100&nonce=n1", textXML)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "safe", p.params.Signature)
}

func TestCallbackReplyContentType(t *testing.T) {
	p := &stubProcessor{res: &center.Result{
		Body:  []byte("<xml>reply</xml>"),
		Reply: message.Encoded{Text: "<xml>reply</xml>", Encrypt: true},
	}}
	rec := do(newServer(t, p, 0), http.MethodPost, "/wx/main?signature=s", textXML)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXML, rec.Header().Get("Content-Type"))
	assert.Equal(t, "<xml>reply</xml>", rec.Body.String())
}

func TestCallbackStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"decryption", fault.New(fault.DecryptionFailed, "signature mismatch for token tok", nil), http.StatusForbidden, "forbidden"},
		{"malformed", fault.New(fault.MalformedMessage, "missing MsgType", nil), http.StatusBadRequest, "bad request"},
		{"handler", fault.New(fault.HandlerFailure, "boom", nil), http.StatusInternalServerError, "internal error"},
		{"encryption", fault.New(fault.EncryptionFailed, "aes", nil), http.StatusInternalServerError, "internal error"},
		{"caller gone", context.Canceled, http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(t, &stubProcessor{err: tt.err}, 0), http.MethodPost, "/wx/main?signature=s", textXML)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "tok")
		})
	}
}

func TestCallbackBodyTooLarge(t *testing.T) {
	p := &stubProcessor{}
	rec := do(newServer(t, p, 16), http.MethodPost, "/wx/main?signature=s", textXML)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, p.body, "processor must not run")
}

func TestUnknownPath(t *testing.T) {
	rec := do(newServer(t, &stubProcessor{}, 0), http.MethodPost, "/wx/other?signature=s", textXML)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Endpoints: []Endpoint{{Path: "/wx/main"}}}, nil)
	assert.Error(t, err)

	_, err = New(Config{Endpoints: []Endpoint{
		{Path: "/wx/main", Processor: &stubProcessor{}, Verifier: stubVerifier{}},
		{Path: "/wx/main", Processor: &stubProcessor{}, Verifier: stubVerifier{}},
	}}, nil)
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(Config{Endpoints: []Endpoint{
		{Path: "/wx/main", Processor: &stubProcessor{}, Verifier: stubVerifier{}},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxBodySize), s.endpoints["/wx/main"].MaxBodySize)
}

// sealedReply is the encrypted document the platform exchanges in safe mode.
type sealedReply struct {
	Encrypt      string `xml:"Encrypt"`
	MsgSignature string `xml:"MsgSignature"`
	TimeStamp    string `xml:"TimeStamp"`
	Nonce        string `xml:"Nonce"`
}

func TestSafeModeEndToEnd(t *testing.T) {
	cipher, err := msgcrypt.New(msgcrypt.Config{
		AppID:          testAppID,
		Token:          testToken,
		EncodingAESKey: testAESKey,
		Mode:           msgcrypt.ModeSafe,
	})
	require.NoError(t, err)

	store := dedup.NewStore(dedup.NewMemoryCache(100, time.Minute), quietLogger())
	c := center.New("main", cipher, store, echobot.New(echobot.Config{Prefix: "echo: "}), quietLogger())

	s, err := New(Config{Endpoints: []Endpoint{{Path: "/wx/main", App: "main", Processor: c, Verifier: cipher}}}, quietLogger())
	require.NoError(t, err)
	h := s.Handler()

	// Seal the inbound message the way the platform does.
	inbound, err := cipher.Encrypt([]byte(textXML), "1700000000", "nonce1")
	require.NoError(t, err)
	var in sealedReply
	require.NoError(t, xml.Unmarshal(inbound, &in))

	q := url.Values{}
	q.Set("msg_signature", in.MsgSignature)
	q.Set("signature", "ignored-in-safe-mode")
	q.Set("timestamp", "1700000000")
	q.Set("nonce", "nonce1")
	q.Set("encrypt_type", "aes")
	target := "/wx/main?" + q.Encode()

	rec := do(h, http.MethodPost, target, string(inbound))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contentTypeXML, rec.Header().Get("Content-Type"))

	var out sealedReply
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, msgcrypt.Signature(testToken, out.TimeStamp, out.Nonce, out.Encrypt), out.MsgSignature)

	// The reply decrypts to the echo, addressed back to the sender.
	plain, err := cipher.Decrypt(out.MsgSignature, out.TimeStamp, out.Nonce, rec.Body.Bytes())
	require.NoError(t, err)
	var reply struct {
		ToUserName   string `xml:"ToUserName"`
		FromUserName string `xml:"FromUserName"`
		Content      string `xml:"Content"`
	}
	require.NoError(t, xml.Unmarshal(plain, &reply))
	assert.Equal(t, "u1", reply.ToUserName)
	assert.Equal(t, "acct", reply.FromUserName)
	assert.Equal(t, "echo: hello", reply.Content)

	// A redelivery is answered from the reply cache.
	rec = do(h, http.MethodPost, target, string(inbound))
	require.Equal(t, http.StatusOK, rec.Code)

	// Tampered signature.
	q.Set("msg_signature", "0000")
	rec = do(h, http.MethodPost, "/wx/main?"+q.Encode(), string(inbound))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"4KB", 4096, false},
		{"1mb", 1 << 20, false},
		{"1GB", 1 << 30, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMaxBodySize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
