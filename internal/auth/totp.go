package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RFC 6238 parameters. Skew of 2 tolerates up to 60 seconds of client
// clock drift in either direction.
const (
	totpSecretBytes = 20
	totpPeriod      = 30
	totpDigits      = 6
	totpSkew        = 2
	totpIssuer      = "CLUPSO"
)

// GenerateTOTPSecret returns a new base32 (no padding) TOTP secret.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI authenticator apps consume.
func ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(totpIssuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", totpIssuer)
	v.Set("period", strconv.Itoa(totpPeriod))
	v.Set("digits", strconv.Itoa(totpDigits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyTOTP checks a 6-digit code against the base32 secret, accepting
// codes from the current time step and totpSkew steps either side.
func VerifyTOTP(secretBase32, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != totpDigits || !isNumeric(trimmed) {
		return false
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	secret, err := enc.DecodeString(strings.ToUpper(secretBase32))
	if err != nil || len(secret) == 0 {
		return false
	}

	baseCounter := now.Unix() / totpPeriod
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := baseCounter + step
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true
		}
	}

	return false
}

// hotpCode computes the RFC 4226 dynamic-truncation code for a counter.
func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < totpDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", totpDigits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
