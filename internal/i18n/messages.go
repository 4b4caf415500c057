// Package i18n resolves the request locale and renders the user-facing
// failure messages of the API.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys
const (
	KeyInvalidArgument    = "error.invalid_argument"
	KeyPermissionDenied   = "error.permission_denied"
	KeyNotFound           = "error.not_found"
	KeyFailedPrecondition = "error.failed_precondition"
	KeyConflict           = "error.conflict"
	KeyInternal           = "error.internal"
)

var (
	English = language.English
	Bokmal  = language.MustParse("nb")

	supported = []language.Tag{English, Bokmal}
	matcher   = language.NewMatcher(supported)
)

var catalog = map[language.Tag]map[string]string{
	English: {
		KeyInvalidArgument:    "The request is invalid: %s",
		KeyPermissionDenied:   "The admin key is missing or incorrect.",
		KeyNotFound:           "The requested record does not exist.",
		KeyFailedPrecondition: "The operation cannot be applied: %s",
		KeyConflict:           "The record was changed by someone else. Please reload and try again.",
		KeyInternal:           "Something went wrong. Please try again.",
	},
	Bokmal: {
		KeyInvalidArgument:    "Forespørselen er ugyldig: %s",
		KeyPermissionDenied:   "Adminnøkkelen mangler eller er feil.",
		KeyNotFound:           "Oppføringen finnes ikke.",
		KeyFailedPrecondition: "Operasjonen kan ikke utføres: %s",
		KeyConflict:           "Oppføringen ble endret av noen andre. Last inn på nytt og prøv igjen.",
		KeyInternal:           "Noe gikk galt. Prøv igjen.",
	},
}

func init() {
	for tag, messages := range catalog {
		for key, msg := range messages {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
}

// Supported returns the locales with a message catalog
func Supported() []language.Tag {
	return supported
}

// ParseTag returns the supported locale closest to value, or fallback
func ParseTag(value string, fallback language.Tag) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	return supported[index]
}

// Sprintf renders the message for key in the given locale
func Sprintf(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}
