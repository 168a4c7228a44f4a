package handlers

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

func TestCheckTwoFactor(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: "alice",
	})
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	plain := &models.User{Username: "alice"}
	secured := &models.User{
		Username:         "alice",
		TwoFactorEnabled: true,
		TwoFactorSecret:  key.Secret(),
	}

	assert.Equal(t, twoFAOK, checkTwoFactor(plain, ""), "2fa disabled ignores the code")
	assert.Equal(t, twoFAOK, checkTwoFactor(plain, "000000"))

	assert.Equal(t, twoFARequired, checkTwoFactor(secured, ""), "password alone is not enough")
	assert.Equal(t, twoFAInvalid, checkTwoFactor(secured, "000000"))
	assert.Equal(t, twoFAOK, checkTwoFactor(secured, code))
}
