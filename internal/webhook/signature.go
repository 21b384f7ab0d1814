package webhook

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// paddleReplayWindow bounds, in whole seconds, how far a billing signature
// timestamp may drift from the local clock. Not configurable.
const paddleReplayWindow = 5

const (
	HeaderPaddleSignature   = "Paddle-Signature"
	HeaderKeycloakSignature = "X-Keycloak-Signature"
	HeaderDiscordSignature  = "X-Signature-Ed25519"
	HeaderDiscordTimestamp  = "X-Signature-Timestamp"
)

// parsePaddleHeader splits "ts=<unix>;h1=<hex>". Every segment must be a
// key=value pair and both keys must be present. tsRaw is the timestamp exactly
// as sent; it is what the sender signed.
func parsePaddleHeader(header string) (ts int64, tsRaw, h1 string, ok bool) {
	for _, part := range strings.Split(header, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, "", "", false
		}
		switch key {
		case "ts":
			tsRaw = value
		case "h1":
			h1 = value
		}
	}
	if tsRaw == "" || h1 == "" {
		return 0, "", "", false
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return ts, tsRaw, h1, true
}

// VerifyPaddleSignature checks a billing webhook. The signed string is
// "{ts}:{rawBody}" and the timestamp must be within 5 seconds of now.
func VerifyPaddleSignature(rawBody []byte, header, secret string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}
	ts, tsRaw, h1, ok := parsePaddleHeader(header)
	if !ok {
		return false
	}

	// Whole seconds; converting a far-off ts to a time.Duration saturates.
	if drift := now.Unix() - ts; drift > paddleReplayWindow || drift < -paddleReplayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsRaw))
	mac.Write([]byte(":"))
	mac.Write(rawBody)
	return equalHex(h1, mac.Sum(nil))
}

// VerifyKeycloakSignature checks an identity webhook: hex HMAC-SHA256 of the
// raw body, no timestamp.
func VerifyKeycloakSignature(rawBody []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return equalHex(strings.TrimSpace(header), mac.Sum(nil))
}

// VerifyDiscordSignature checks an interactions request: Ed25519 over
// timestamp followed by the raw body.
func VerifyDiscordSignature(rawBody []byte, signatureHex, timestamp, publicKeyHex string) bool {
	if signatureHex == "" || timestamp == "" {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(rawBody))
	msg = append(msg, timestamp...)
	msg = append(msg, rawBody...)
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

func equalHex(provided string, expected []byte) bool {
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}
