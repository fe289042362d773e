package venue

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// HMACSigner signs outgoing requests the way most crypto venues expect: a
// timestamp header plus an HMAC-SHA256 signature over "key+timestamp",
// keyed by the API secret. signedRequest calls Sign before the request's
// method/path/body are attached, so the signature can only cover what's
// known at that point; venues that need the full request signed (method,
// path, body) provide their own RequestSigner built against their actual
// SDK instead.
type HMACSigner struct {
	now func() time.Time
}

// NewHMACSigner returns the default signer.
func NewHMACSigner() HMACSigner {
	return HMACSigner{now: time.Now}
}

func (s HMACSigner) Sign(req *resty.Request, creds Credentials) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ts := strconv.FormatInt(now().UTC().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(creds.APIKey + ts))
	sig := hex.EncodeToString(mac.Sum(nil))

	req.SetHeader("API-Key", creds.APIKey)
	req.SetHeader("API-Timestamp", ts)
	req.SetHeader("API-Signature", sig)
}

var _ RequestSigner = HMACSigner{}
