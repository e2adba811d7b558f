package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/wxgate/internal/center"
)

// Processor answers callback deliveries. *center.Center implements it.
type Processor interface {
	Process(ctx context.Context, p center.Params, body []byte) (*center.Result, error)
}

// Verifier answers the GET URL-verification handshake. *msgcrypt.Cipher
// implements it.
type Verifier interface {
	VerifyURL(signature, timestamp, nonce, echostr string) (string, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []Endpoint
	// ShutdownTimeout bounds the graceful drain of in-flight callbacks
	// (default 5s).
	ShutdownTimeout time.Duration
}

// Endpoint is one application's callback URL.
type Endpoint struct {
	// Path is the URL path, e.g. "/wx/main".
	Path string

	// App names the application in logs.
	App string

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64

	Processor Processor
	Verifier  Verifier
}

// Query parameters sent by the platform.
const (
	ParamSignature    = "signature"
	ParamMsgSignature = "msg_signature"
	ParamTimestamp    = "timestamp"
	ParamNonce        = "nonce"
	ParamEchostr      = "echostr"
)

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultShutdownTimeout = 5 * time.Second
)

const (
	contentTypeXML  = "application/xml; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)
