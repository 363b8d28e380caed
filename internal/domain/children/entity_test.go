package children

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordRedacted(t *testing.T) {
	rec := Record{UserID: "u1", Server: "s", AccessToken: "secret", RefreshToken: ""}

	red := rec.Redacted()
	assert.Equal(t, "***", red.AccessToken)
	assert.Empty(t, red.RefreshToken, "absent token stays visibly absent")
	assert.Equal(t, "u1", red.UserID)

	// Original is untouched.
	assert.Equal(t, "secret", rec.AccessToken)
}

func TestKeyIsValid(t *testing.T) {
	assert.True(t, Key("srv|u1").IsValid())
	assert.False(t, Key("srv|").IsValid())
	assert.False(t, Key("|u1").IsValid())
	assert.False(t, Key("no-separator").IsValid())
}
