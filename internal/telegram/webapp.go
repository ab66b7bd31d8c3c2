package telegram

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

var (
	ErrInvalidInitData = errors.New("invalid initData")
	ErrExpiredInitData = errors.New("initData auth date too old")
)

// Identity is the Telegram user the mini app was launched by.
type Identity struct {
	ID         string
	FirstName  string
	Username   string
	StartParam string
}

// ValidateInitData checks the WebApp initData signature against botToken and
// returns the launching user. maxAge of zero accepts any auth date.
func ValidateInitData(initData, botToken string, maxAge time.Duration) (*Identity, error) {
	return validateInitData(initData, botToken, maxAge, time.Now())
}

func validateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInitData, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrInvalidInitData
	}
	values.Del("hash")

	expected := signature(values, botToken)
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return nil, ErrInvalidInitData
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: auth_date: %v", ErrInvalidInitData, err)
	}
	if maxAge > 0 && now.Sub(time.Unix(authDate, 0)) > maxAge {
		return nil, ErrExpiredInitData
	}

	var user struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		Username  string `json:"username"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrInvalidInitData, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidInitData)
	}

	return &Identity{
		ID:         strconv.FormatInt(user.ID, 10),
		FirstName:  user.FirstName,
		Username:   user.Username,
		StartParam: values.Get("start_param"),
	}, nil
}

// SignInitData adds the hash field to values the way Telegram does and
// returns the encoded initData.
func SignInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		if k != "hash" {
			signed[k] = v
		}
	}
	signed.Set("hash", signature(signed, botToken))
	return signed.Encode()
}

func signature(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var dataCheck []string
	for _, k := range keys {
		for _, v := range values[k] {
			dataCheck = append(dataCheck, k+"="+v)
		}
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(dataCheck, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
