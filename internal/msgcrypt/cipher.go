// Package msgcrypt implements the callback crypto of the platform: request
// signatures and the AES-CBC message envelope.
//
// In plain mode bodies travel as-is and only the URL signature is checked. In
// safe mode the body is an <xml><Encrypt/></xml> envelope signed through
// msg_signature, and replies are encrypted the same way.
package msgcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Mode selects how callbacks are protected.
type Mode string

const (
	ModePlain Mode = "plain"
	ModeSafe  Mode = "safe"
)

// ParseMode accepts "plain" or "safe"; "" means plain.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeSafe:
		return ModeSafe, nil
	default:
		return "", fmt.Errorf("unknown crypto mode %q (want plain or safe)", s)
	}
}

const (
	encodingAESKeyLen = 43
	blockSize         = 32
	randomPrefixLen   = 16
)

// Config identifies one application.
type Config struct {
	AppID          string
	Token          string
	EncodingAESKey string
	Mode           Mode
}

// Cipher verifies, decrypts and encrypts callbacks for one application.
type Cipher struct {
	appID string
	token string
	mode  Mode
	key   []byte
	block cipher.Block

	random io.Reader
	now    func() time.Time
}

// New validates cfg. Safe mode requires a 43 character EncodingAESKey and an
// AppID.
func New(cfg Config) (*Cipher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("msgcrypt: token is empty")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}

	c := &Cipher{
		appID:  cfg.AppID,
		token:  cfg.Token,
		mode:   mode,
		random: rand.Reader,
		now:    time.Now,
	}
	if mode == ModePlain {
		return c, nil
	}

	if cfg.AppID == "" {
		return nil, fmt.Errorf("msgcrypt: app id is required in safe mode")
	}
	if len(cfg.EncodingAESKey) != encodingAESKeyLen {
		return nil, newError(IllegalAESKey, fmt.Errorf("encoding aes key must be %d characters", encodingAESKeyLen))
	}
	key, err := base64.StdEncoding.DecodeString(cfg.EncodingAESKey + "=")
	if err != nil {
		return nil, newError(IllegalAESKey, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newError(IllegalAESKey, err)
	}
	c.key = key
	c.block = block
	return c, nil
}

// Mode reports the configured mode.
func (c *Cipher) Mode() Mode { return c.mode }

// VerifyURL answers the GET handshake: when signature matches the token,
// timestamp and nonce, echostr is returned for echoing back.
func (c *Cipher) VerifyURL(signature, timestamp, nonce, echostr string) (string, error) {
	if err := verifySignature(signature, c.token, timestamp, nonce); err != nil {
		return "", err
	}
	return echostr, nil
}

type envelope struct {
	XMLName    xml.Name `xml:"xml"`
	ToUserName string   `xml:"ToUserName"`
	Encrypt    string   `xml:"Encrypt"`
}

// Decrypt authenticates body and returns the plaintext XML. In plain mode
// signature covers token, timestamp and nonce; in safe mode it is the
// msg_signature, which also covers the Encrypt element.
func (c *Cipher) Decrypt(signature, timestamp, nonce string, body []byte) ([]byte, error) {
	if c.mode == ModePlain {
		if err := verifySignature(signature, c.token, timestamp, nonce); err != nil {
			return nil, err
		}
		return body, nil
	}

	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, newError(ParseXMLError, err)
	}
	if env.Encrypt == "" {
		return nil, newError(ParseXMLError, errors.New("missing Encrypt element"))
	}
	if err := verifySignature(signature, c.token, timestamp, nonce, env.Encrypt); err != nil {
		return nil, err
	}
	return c.open(env.Encrypt)
}

func (c *Cipher) open(encrypted string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, newError(DecodeBase64Error, err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, newError(DecryptAESError, fmt.Errorf("ciphertext length %d", len(data)))
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, c.key[:aes.BlockSize]).CryptBlocks(plain, data)

	plain, err = unpad(plain)
	if err != nil {
		return nil, newError(IllegalBuffer, err)
	}
	if len(plain) < randomPrefixLen+4 {
		return nil, newError(IllegalBuffer, errors.New("payload too short"))
	}

	n := int(binary.BigEndian.Uint32(plain[randomPrefixLen : randomPrefixLen+4]))
	rest := plain[randomPrefixLen+4:]
	if n > len(rest) {
		return nil, newError(IllegalBuffer, fmt.Errorf("declared length %d exceeds payload", n))
	}
	msg, appID := rest[:n], rest[n:]
	if string(appID) != c.appID {
		return nil, newError(ValidateAppIDError, nil)
	}
	return msg, nil
}

type sealed struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature cdata    `xml:"MsgSignature"`
	TimeStamp    string   `xml:"TimeStamp"`
	Nonce        cdata    `xml:"Nonce"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// Encrypt seals a plaintext reply. Plain mode returns plain unchanged. An
// empty timestamp is replaced by the current time.
func (c *Cipher) Encrypt(plain []byte, timestamp, nonce string) ([]byte, error) {
	if c.mode == ModePlain {
		return plain, nil
	}
	if timestamp == "" {
		timestamp = strconv.FormatInt(c.now().Unix(), 10)
	}

	encrypted, err := c.seal(plain)
	if err != nil {
		return nil, err
	}

	out, err := xml.Marshal(sealed{
		Encrypt:      cdata{encrypted},
		MsgSignature: cdata{Signature(c.token, timestamp, nonce, encrypted)},
		TimeStamp:    timestamp,
		Nonce:        cdata{nonce},
	})
	if err != nil {
		return nil, newError(GenReturnXMLError, err)
	}
	return out, nil
}

func (c *Cipher) seal(msg []byte) (string, error) {
	var buf bytes.Buffer
	prefix := make([]byte, randomPrefixLen)
	if _, err := io.ReadFull(c.random, prefix); err != nil {
		return "", newError(EncryptAESError, err)
	}
	buf.Write(prefix)
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(msg)))
	buf.Write(n[:])
	buf.Write(msg)
	buf.WriteString(c.appID)

	plain := pad(buf.Bytes())
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.key[:aes.BlockSize]).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// pad applies PKCS#7 padding to a multiple of blockSize.
func pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty buffer")
	}
	n := int(b[len(b)-1])
	if n < 1 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("bad padding %d", n)
	}
	return b[:len(b)-n], nil
}
