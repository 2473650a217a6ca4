package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// The provider signs deliveries with
//
//	signature = hmac-sha256(secret, "<timestamp>.<body>")
//
// carried as "t=<unix>,v1=<hex>". Multiple v1 entries may appear while
// the provider rotates its signing key.

// SignatureHeader is the parsed form of the signature header.
type SignatureHeader struct {
	Timestamp  int64
	Signatures []string
}

func ParseSignatureHeader(header string) (*SignatureHeader, error) {
	if header == "" {
		return nil, errors.New("missing signature header")
	}

	parsed := &SignatureHeader{}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("malformed signature element %q", part)
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed timestamp %q", value)
			}
			parsed.Timestamp = ts
		case "v1":
			parsed.Signatures = append(parsed.Signatures, value)
		}
	}

	if parsed.Timestamp == 0 || len(parsed.Signatures) == 0 {
		return nil, errors.New("signature header missing t or v1 element")
	}
	return parsed, nil
}

// ComputeSignature returns the hex HMAC for a secret, timestamp and
// body.
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the header against every candidate secret —
// the current one first, then recently rotated-out fallbacks, so key
// rotation never drops deliveries. Returns the signed timestamp on
// success. Comparison is constant-time.
func VerifySignature(secrets []string, header string, body []byte) (int64, error) {
	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return 0, err
	}

	for _, secret := range secrets {
		expected := ComputeSignature(secret, parsed.Timestamp, body)
		for _, candidate := range parsed.Signatures {
			if hmac.Equal([]byte(expected), []byte(candidate)) {
				return parsed.Timestamp, nil
			}
		}
	}
	return 0, errors.New("signature does not match any configured secret")
}
