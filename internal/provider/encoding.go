package provider

import (
	"encoding/hex"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"

	"github.com/unclebandit/oudcrm-automation/internal/model"
)

// Encoding is the SMS data coding of a message body.
type Encoding string

const (
	EncodingAuto Encoding = ""
	EncodingGSM7 Encoding = "gsm7"
	EncodingUCS2 Encoding = "ucs2"
)

const (
	gsm7Single = 160
	gsm7Multi  = 153
	ucs2Single = 70
	ucs2Multi  = 67
)

const gsm7Basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"

// Extension characters take an escape plus the character: two septets.
const gsm7Extension = "^{}\\[~]|€\f"

// IsGSM7 reports whether body fits the GSM 03.38 default alphabet.
func IsGSM7(body string) bool {
	for _, r := range body {
		if !strings.ContainsRune(gsm7Basic, r) && !strings.ContainsRune(gsm7Extension, r) {
			return false
		}
	}
	return true
}

// DetectEncoding picks UCS-2 for Arabic messages and for any body the GSM
// alphabet cannot carry.
func DetectEncoding(language, body string) Encoding {
	if language == model.LanguageArabic || !IsGSM7(body) {
		return EncodingUCS2
	}
	return EncodingGSM7
}

// CountSegments returns how many SMS parts body needs under enc.
func CountSegments(body string, enc Encoding) int {
	if enc == EncodingAuto {
		enc = DetectEncoding("", body)
	}
	var units, single, multi int
	if enc == EncodingUCS2 {
		units = len(utf16.Encode([]rune(body)))
		single, multi = ucs2Single, ucs2Multi
	} else {
		for _, r := range body {
			units++
			if strings.ContainsRune(gsm7Extension, r) {
				units++
			}
		}
		single, multi = gsm7Single, gsm7Multi
	}
	if units <= single {
		return 1
	}
	return (units + multi - 1) / multi
}

// EncodeUCS2 returns body as upper-case hex of its UTF-16BE bytes.
func EncodeUCS2(body string) (string, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := enc.String(body)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString([]byte(b))), nil
}
