// Package passport implements the portable credential blob used for manual
// cross-device account transfer. The blob is base64 over UTF-8 JSON, so it
// is printable ASCII and safely copy-pasteable as plain text.
package passport

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	apperrors "mooderia-backend/internal/common/errors"
)

// Credentials is the minimal reconstruction payload. Importing never
// bypasses credential verification: the caller re-enters through login with
// the recovered pair.
type Credentials struct {
	Code   string `json:"code"`
	Phrase string `json:"phrase"`
}

// Export encodes the credential pair into the portable blob.
func Export(code, phrase string) (string, error) {
	raw, err := json.Marshal(Credentials{Code: code, Phrase: phrase})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode passport")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Import decodes a passport blob. Any malformed input (bad base64, bad
// JSON, missing fields) yields CORRUPT_PASSPORT.
func Import(blob string) (Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Credentials{}, apperrors.NewCorruptPassport(err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, apperrors.NewCorruptPassport(err)
	}
	if creds.Code == "" || creds.Phrase == "" {
		return Credentials{}, apperrors.NewCorruptPassport(errors.New("missing required fields"))
	}
	return creds, nil
}
