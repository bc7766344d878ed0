// Package normalize validates and clamps untrusted card-request fields into
// a safe canonical form. It performs no network or disk access.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wallet-cards/internal/types"
)

// Field length caps, applied before any other transform so pathological
// input is bounded up front.
const (
	MaxWalletLen      = 42
	MaxDisplayNameLen = 22
	MaxShortWalletLen = 22
	MaxEthStringLen   = 40
	MaxIntStringLen   = 30
	MaxAvatarURLLen   = 600
	MaxDecorPathLen   = 120
)

// walletRegex matches a canonical lower-case wallet address.
var walletRegex = regexp.MustCompile(`^0x[a-f0-9]{40}$`)

// ethStripRegex keeps only the characters meaningful in a decimal amount.
var ethStripRegex = regexp.MustCompile(`[^0-9.+-]`)

// digitsOnlyRegex strips everything but digits.
var digitsOnlyRegex = regexp.MustCompile(`[^0-9]`)

// ValidWallet reports whether the given string is a canonical lower-case
// 0x-prefixed 40-hex-digit wallet address.
func ValidWallet(wallet string) bool {
	return walletRegex.MatchString(wallet)
}

// LimitString trims whitespace and truncates the value to at most max runes.
func LimitString(value string, max int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) > max {
		return string(runes[:max])
	}
	return value
}

// SanitizeText length-caps a display string and strips control characters.
// The rendered scene composes glyphs directly, so markup metacharacters are
// inert once they pass through here.
func SanitizeText(value string, max int) string {
	value = LimitString(value, max)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}

// ShortAddress derives the compact wallet label: first 6 + last 4 characters
// joined by an ellipsis.
func ShortAddress(wallet string) string {
	if len(wallet) < 10 {
		return wallet
	}
	return wallet[:6] + "..." + wallet[len(wallet)-4:]
}

// NormalizeEthString sanitizes a sign-tolerant decimal amount string.
// Commas are treated as an alternate decimal separator; anything that is
// not a digit, dot or sign is stripped. A result with no digits becomes "0".
func NormalizeEthString(value string) string {
	raw := strings.ReplaceAll(LimitString(value, MaxEthStringLen), ",", ".")
	clean := ethStripRegex.ReplaceAllString(raw, "")
	if !strings.ContainsAny(clean, "0123456789") {
		return "0"
	}
	return clean
}

// NormalizeIntegerString strips everything but digits; empty becomes "0".
func NormalizeIntegerString(value string) string {
	clean := digitsOnlyRegex.ReplaceAllString(LimitString(value, MaxIntStringLen), "")
	if clean == "" {
		return "0"
	}
	return clean
}

// NormalizeDecorPath accepts a decorative GIF reference only if it is an
// /assets/*.gif path with no parent-directory segment. Anything else is
// treated as absent.
func NormalizeDecorPath(value string) string {
	path := LimitString(value, MaxDecorPathLen)
	if !strings.HasPrefix(path, "/assets/") {
		return ""
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gif") {
		return ""
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return ""
		}
	}
	return path
}

// NetToneFor classifies the numeric sign of a net amount string. Unparsable
// values fall back to neutral.
func NetToneFor(netEth string) types.NetTone {
	value, err := strconv.ParseFloat(netEth, 64)
	if err != nil {
		return types.ToneNeutral
	}
	switch {
	case value > 0:
		return types.TonePositive
	case value < 0:
		return types.ToneNegative
	default:
		return types.ToneNeutral
	}
}

// Normalize validates and clamps an untrusted card request. The wallet field
// is the only one that can fail; every other field degrades to a safe
// default.
func Normalize(raw *types.RawCardRequest) (*types.CardRequest, error) {
	wallet := strings.ToLower(LimitString(raw.Wallet, MaxWalletLen))
	if !ValidWallet(wallet) {
		return nil, types.NewServiceError(types.CodeInvalidWallet, "Invalid wallet format")
	}

	shortWallet := SanitizeText(raw.ShortWallet, MaxShortWalletLen)
	if shortWallet == "" {
		shortWallet = ShortAddress(wallet)
	}

	displayName := SanitizeText(raw.DisplayName, MaxDisplayNameLen)
	if displayName == "" {
		displayName = shortWallet
	}

	netEth := NormalizeEthString(raw.NetEth)

	return &types.CardRequest{
		Wallet:           wallet,
		DisplayName:      displayName,
		ShortWallet:      shortWallet,
		KeySpendEth:      NormalizeEthString(raw.KeySpendEth),
		WeeklyClaimsEth:  NormalizeEthString(raw.WeeklyClaimsEth),
		JackpotClaimsEth: NormalizeEthString(raw.JackpotClaimsEth),
		TotalClaimsEth:   NormalizeEthString(raw.TotalClaimsEth),
		NetEth:           netEth,
		KeysBought:       NormalizeIntegerString(raw.KeysBought),
		PurchaseEvents:   NormalizeIntegerString(raw.PurchaseEvents),
		WeeklyEvents:     NormalizeIntegerString(raw.WeeklyEvents),
		JackpotEvents:    NormalizeIntegerString(raw.JackpotEvents),
		AvatarURL:        LimitString(raw.AvatarURL, MaxAvatarURLLen),
		DecorGif:         NormalizeDecorPath(raw.DecorGif),
		NetTone:          NetToneFor(netEth),
	}, nil
}
