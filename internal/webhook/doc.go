// Package webhook serves the platform's callback URLs.
//
// Each configured endpoint belongs to one application and answers two
// requests on the same path:
//
//   - GET: URL verification. signature, timestamp and nonce are checked
//     against the application token and echostr is echoed back as text/plain.
//   - POST: a callback delivery. The body is handed to the application's
//     center.Center with msg_signature (safe mode) or signature.
//
// # Security Model
//
// - Signatures are compared in constant time by internal/msgcrypt
// - Body size limits enforced to prevent DoS attacks
// - No signature or decryption details leaked in error responses (always generic 403)
// - Request logging excludes payloads
// - Tokens and AES keys loaded from environment variables (never hardcoded)
//
// # Configuration
//
//	webhooks:
//	  listen: "0.0.0.0:8080"
//	  endpoints:
//	    - path: /wx/main
//	      app_id: wx123
//	      token: ${WX_TOKEN}
//	      encoding_aes_key: ${WX_AES_KEY}
//	      mode: safe
//	      max_body_size: 1MB
//
// # Responses
//
// - 200 OK: application/xml for replies, text/plain for "" and "success"
// - 400 Bad Request: the decrypted body is not a callback document
// - 403 Forbidden: signature or decryption failure
// - 413 Payload Too Large: Body exceeds max_body_size
// - 500 Internal Server Error: handling or reply encryption failed
package webhook
