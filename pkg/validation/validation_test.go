package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kycflow/pkg/domain-errors"
)

type authRequest struct {
	APIKey   string `validate:"required,min=10"`
	BaseURL  string `validate:"required,url"`
	Nickname string `validate:"notblank"`
	Birthday string `validate:"notblank,calendardate"`
}

func validRequest() authRequest {
	return authRequest{
		APIKey:   "0123456789",
		BaseURL:  "http://localhost:3003",
		Nickname: "demo",
		Birthday: "1990-05-17",
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		assert.NoError(t, Validate(validRequest()))
	})

	t.Run("collects every failing field", func(t *testing.T) {
		req := validRequest()
		req.APIKey = "short"
		req.Nickname = "   "
		req.Birthday = "not a date"

		err := Validate(req)
		require.Error(t, err)
		assert.True(t, dErrors.IsValidation(err))
		assert.Equal(t, []string{
			"api_key must be at least 10",
			"nickname must not be blank",
			"birthday must be a valid date",
		}, dErrors.ViolationsOf(err))
	})

	t.Run("blank date reports notblank only", func(t *testing.T) {
		req := validRequest()
		req.Birthday = ""
		assert.Equal(t, []string{"birthday must not be blank"}, dErrors.ViolationsOf(Validate(req)))
	})
}

func TestCheckWithRenderer(t *testing.T) {
	req := validRequest()
	req.APIKey = ""

	msgs := Check(req, func(fe FieldError) string {
		if fe.Field == "APIKey" && fe.Tag == "required" {
			return "API key is required"
		}
		return ""
	})
	assert.Equal(t, []string{"API key is required"}, msgs)

	req = validRequest()
	req.BaseURL = "::nope"
	msgs = Check(req, func(FieldError) string { return "" })
	assert.Equal(t, []string{"base_url must be a valid url"}, msgs)
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{
		"1990-05-17",
		"1990-05-17T00:00:00Z",
		"1990-05-17T10:30:00",
		"1990/05/17",
		"05/17/1990",
		"17 May 1990",
		"May 17, 1990",
		"May 17 1990",
		"2 January 2006",
		" 1990-05-17 ",
	} {
		_, ok := ParseDate(raw)
		assert.True(t, ok, raw)
	}

	for _, raw := range []string{"", "   ", "1990-13-40", "yesterday", "17.05.1990"} {
		_, ok := ParseDate(raw)
		assert.False(t, ok, raw)
	}
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"APIKey":      "api_key",
		"BaseURL":     "base_url",
		"TenantID":    "tenant_id",
		"FullName":    "full_name",
		"Nickname":    "nickname",
		"DateOfBirth": "date_of_birth",
	}
	for in, want := range cases {
		assert.Equal(t, want, snakeCase(in), in)
	}
}
