package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultInitDataMaxAge is how long signed Mini-App launch data stays valid.
const DefaultInitDataMaxAge = 24 * time.Hour

var (
	ErrMissingHash  = errors.New("missing hash")
	ErrInvalidHash  = errors.New("invalid hash")
	ErrExpired      = errors.New("auth_date expired")
	ErrMissingDate  = errors.New("missing auth_date")
	ErrMissingUser  = errors.New("missing user")
	ErrInvalidUser  = errors.New("invalid user")
	ErrInvalidToken = errors.New("invalid token")
)

type TelegramUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// InitData is verified Mini-App launch data.
type InitData struct {
	User     *TelegramUser
	AuthDate time.Time
	Fields   map[string]string
}

// VerifyInitData checks the signature and freshness of Mini-App launch data.
// The user field is optional here; ValidateInitData requires it.
func VerifyInitData(initData, botToken string, maxAge time.Duration, now time.Time) (InitData, error) {
	parsed, err := url.ParseQuery(initData)
	if err != nil {
		return InitData{}, fmt.Errorf("parse initData: %w", err)
	}

	hash := parsed.Get("hash")
	if hash == "" {
		return InitData{}, ErrMissingHash
	}
	parsed.Del("hash")

	dataCheckString := buildDataCheckString(parsed)
	secretKey := buildSecretKey(botToken)
	calcHash := computeHMAC(secretKey, dataCheckString)
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return InitData{}, ErrInvalidHash
	}
	calcBytes, _ := hex.DecodeString(calcHash)
	if !hmac.Equal(calcBytes, hashBytes) {
		return InitData{}, ErrInvalidHash
	}

	authDateStr := parsed.Get("auth_date")
	if authDateStr == "" {
		return InitData{}, ErrMissingDate
	}
	sec, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return InitData{}, ErrMissingDate
	}
	if maxAge > 0 && now.Unix()-sec > int64(maxAge/time.Second) {
		return InitData{}, ErrExpired
	}

	out := InitData{
		AuthDate: time.Unix(sec, 0).UTC(),
		Fields:   make(map[string]string, len(parsed)),
	}
	for key, values := range parsed {
		if len(values) > 0 {
			out.Fields[key] = values[0]
		}
	}
	if raw := parsed.Get("user"); raw != "" {
		user, err := parseUser(raw)
		if err != nil {
			return InitData{}, fmt.Errorf("parse user: %w", err)
		}
		out.User = &user
	}
	return out, nil
}

// ValidateInitData verifies launch data and returns the embedded user.
func ValidateInitData(initData string, botToken string, maxAge time.Duration) (TelegramUser, map[string]string, error) {
	data, err := VerifyInitData(initData, botToken, maxAge, time.Now())
	if err != nil {
		return TelegramUser{}, nil, err
	}
	if data.User == nil {
		return TelegramUser{}, nil, ErrMissingUser
	}
	return *data.User, data.Fields, nil
}

// SignInitData produces launch data signed the same way the Mini-App host does.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for key, v := range values {
		if key == "hash" {
			continue
		}
		signed[key] = append([]string(nil), v...)
	}
	signed.Set("hash", computeHMAC(buildSecretKey(botToken), buildDataCheckString(signed)))
	return signed.Encode()
}

// BuildWebAppInitData signs launch data for a user at authDate.
func BuildWebAppInitData(user TelegramUser, botToken string, authDate time.Time) (string, error) {
	if user.ID <= 0 {
		return "", ErrInvalidUser
	}
	if authDate.IsZero() {
		authDate = time.Now().UTC()
	}
	rawUser, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("user", string(rawUser))
	return SignInitData(values, botToken), nil
}

func buildDataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values.Get(key))
	}
	return strings.Join(parts, "\n")
}

func buildSecretKey(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

func computeHMAC(secret []byte, data string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func parseUser(raw string) (TelegramUser, error) {
	var user TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return TelegramUser{}, err
	}
	if user.ID == 0 {
		return TelegramUser{}, ErrInvalidUser
	}
	return user, nil
}
