package oauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
)

// Telegram verifies Login Widget payloads. There is no code exchange: the
// widget hands the signed profile to the client directly.
type Telegram struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

func NewTelegram(botToken string, maxAge time.Duration) *Telegram {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Telegram{botToken: botToken, maxAge: maxAge, now: time.Now}
}

func (t *Telegram) Name() string { return constants.ProviderTelegram }

var (
	errTelegramHash    = errors.New("hash mismatch")
	errTelegramExpired = errors.New("auth_date too old")
	errTelegramFuture  = errors.New("auth_date in the future")
)

// telegramClockSkew is how far ahead of local time auth_date may be.
const telegramClockSkew = time.Minute

// Verify checks the payload HMAC and age and returns the normalized profile.
// The check string is every field except hash as sorted key=value lines.
func (t *Telegram) Verify(data map[string]string) (*Profile, error) {
	received, err := hex.DecodeString(data["hash"])
	if err != nil || len(received) == 0 {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, errTelegramHash)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + data[k]
	}

	secret := sha256.Sum256([]byte(t.botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	if !hmac.Equal(mac.Sum(nil), received) {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, errTelegramHash)
	}

	authDate, err := strconv.ParseInt(data["auth_date"], 10, 64)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, fmt.Errorf("auth_date: %w", err))
	}
	age := t.now().Sub(time.Unix(authDate, 0))
	if age < -telegramClockSkew {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, errTelegramFuture)
	}
	if age > t.maxAge {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, errTelegramExpired)
	}

	id := data["id"]
	if id == "" {
		return nil, apperrors.WrapError(apperrors.ErrTelegramAuthInvalid, errors.New("missing id"))
	}

	raw := make(map[string]any, len(data))
	for k, v := range data {
		if k != "hash" {
			raw[k] = v
		}
	}

	return &Profile{
		Provider:       constants.ProviderTelegram,
		ProviderUserID: id,
		Email:          constants.SyntheticEmail(constants.ProviderTelegram, id),
		EmailVerified:  false,
		FirstName:      data["first_name"],
		LastName:       data["last_name"],
		FullName:       joinName(data["first_name"], data["last_name"]),
		AvatarURL:      data["photo_url"],
		Raw:            raw,
	}, nil
}

// ParseTelegramJSON flattens a widget JSON payload into the string map
// Verify expects. Numbers keep their original text.
func ParseTelegramJSON(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, err)
	}

	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			return nil, apperrors.WrapError(apperrors.ErrInvalidInput, fmt.Errorf("field %s is not a scalar", k))
		}
	}
	return out, nil
}
