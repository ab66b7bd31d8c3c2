package referral

import (
	"math/rand/v2"
	"net/url"
	"strings"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateCode derives a six character referral code: the last three digits
// of the user id followed by three random base-36 characters. Codes are not
// checked for collisions.
func GenerateCode(userID string) string {
	return generateCode(userID, rand.IntN)
}

func generateCode(userID string, intn func(int) int) string {
	var digits []byte
	for _, r := range userID {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}

	var b strings.Builder
	b.Grow(6)
	switch {
	case len(digits) == 0:
		for i := 0; i < 3; i++ {
			b.WriteByte(codeAlphabet[intn(10)])
		}
	case len(digits) < 3:
		b.WriteString(strings.Repeat("0", 3-len(digits)))
		b.Write(digits)
	default:
		b.Write(digits[len(digits)-3:])
	}
	for i := 0; i < 3; i++ {
		b.WriteByte(codeAlphabet[intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode canonicalises a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Link is the bot deep link that carries code as the start parameter.
func Link(botURL, code string) string {
	return botURL + "?start=" + url.QueryEscape(code)
}

func ShareText(link string) string {
	return "🐸 Join me on Pepe Earn and start earning cryptocurrency by watching ads! Use my referral link: " + link
}

// ShareURL opens Telegram's share sheet prefilled with the referral link.
func ShareURL(link string) string {
	return "https://t.me/share/url?url=" + encodeComponent(link) + "&text=" + encodeComponent(ShareText(link))
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
