package client

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// Signer adds the Marvel server-side authentication parameters to a request URL:
// ts, apikey and hash = md5(ts + privateKey + publicKey).
type Signer struct {
	publicKey  string
	privateKey string
	now        func() time.Time
}

// NewSigner creates a signer for a key pair.
func NewSigner(publicKey, privateKey string) *Signer {
	return &Signer{
		publicKey:  publicKey,
		privateKey: privateKey,
		now:        time.Now,
	}
}

// Sign sets ts, apikey and hash on u, replacing any previous values.
func (s *Signer) Sign(u *url.URL) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	q := u.Query()
	q.Set("ts", ts)
	q.Set("apikey", s.publicKey)
	q.Set("hash", Hash(ts, s.privateKey, s.publicKey))
	u.RawQuery = q.Encode()
}

// Hash returns the hex md5 digest of ts + privateKey + publicKey.
func Hash(ts, privateKey, publicKey string) string {
	sum := md5.Sum([]byte(ts + privateKey + publicKey))
	return hex.EncodeToString(sum[:])
}
