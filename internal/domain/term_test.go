package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTerm(t *testing.T) {
	for _, ok := range []string{"2261", "2264", "2257"} {
		assert.NoError(t, ValidateTerm(ok), ok)
	}
	for _, bad := range []string{"", "226", "22611", "226a", "2262", "fall"} {
		assert.Error(t, ValidateTerm(bad), bad)
	}
}

func TestValidateTermFormat(t *testing.T) {
	for _, ok := range []string{"2261", "2262", "0000"} {
		assert.NoError(t, ValidateTermFormat(ok), ok)
	}
	for _, bad := range []string{"", "226", "22611", "226a", "fall"} {
		assert.Error(t, ValidateTermFormat(bad), bad)
	}
}

func TestTermName(t *testing.T) {
	assert.Equal(t, "Spring 2026", TermName("2261"))
	assert.Equal(t, "Summer 2026", TermName("2264"))
	assert.Equal(t, "Fall 2025", TermName("2257"))
	assert.Equal(t, "9999", TermName("9999"))
}

func TestAvailable_ZeroSeatsIsUnavailable(t *testing.T) {
	r := Available(0, "12345", "Data Structures")
	assert.Equal(t, FetchUnavailable, r.Status)
	assert.False(t, r.Open())

	r = Available(4, "12345", "Data Structures")
	assert.True(t, r.Open())
	assert.Equal(t, "available", r.Status.String())
}
