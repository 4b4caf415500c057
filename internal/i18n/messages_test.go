package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTag(t *testing.T) {
	assert.Equal(t, Bokmal, ParseTag("nb-NO,nb;q=0.9,en;q=0.8", English))
	assert.Equal(t, English, ParseTag("en-GB", Bokmal))
	assert.Equal(t, English, ParseTag("", English))
	assert.Equal(t, Bokmal, ParseTag("!!", Bokmal))
}

func TestSprintf(t *testing.T) {
	assert.Equal(t, "The admin key is missing or incorrect.", Sprintf(English, KeyPermissionDenied))
	assert.Equal(t, "Adminnøkkelen mangler eller er feil.", Sprintf(Bokmal, KeyPermissionDenied))
	assert.Equal(t, "The request is invalid: bad path", Sprintf(English, KeyInvalidArgument, "bad path"))
}
