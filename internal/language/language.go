// Package language decides which output languages an application produces.
package language

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// ErrUnknownLanguage is returned when a tag cannot be parsed.
var ErrUnknownLanguage = errors.New("unknown language tag")

// Normalize reduces a BCP-47 tag such as "en-US" or "he_IL" to its base language ("en", "he").
func Normalize(tag string) (string, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if raw == "" {
		return "", ErrUnknownLanguage
	}
	parsed, err := language.Parse(raw)
	if err != nil {
		return "", ErrUnknownLanguage
	}
	base, conf := parsed.Base()
	if conf == language.No {
		return "", ErrUnknownLanguage
	}
	return base.String(), nil
}

// minDetectRunes is the shortest sample Detect will guess from.
const minDetectRunes = 32

// Detect guesses the base language of text. It returns "" for samples under minDetectRunes
// and when the guess is not reliable, which is common for mixed-script input.
func Detect(text string) string {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minDetectRunes {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	tag, err := Normalize(info.Lang.Iso6391())
	if err != nil {
		return ""
	}
	return tag
}

// Resolve returns {cv} when both languages match, otherwise {cv, job}.
// Inputs are expected to be normalized already.
func Resolve(cv, job string) []string {
	if cv == job {
		return []string{cv}
	}
	return []string{cv, job}
}

// ResolveTags normalizes both tags before resolving.
func ResolveTags(cvTag, jobTag string) ([]string, error) {
	cv, err := Normalize(cvTag)
	if err != nil {
		return nil, err
	}
	job, err := Normalize(jobTag)
	if err != nil {
		return nil, err
	}
	return Resolve(cv, job), nil
}
