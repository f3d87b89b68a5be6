package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	token, exp, err := Issue("teach-1", RoleTeacher, "classattend", "key", time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	claims, err := Parse(token, "key", "classattend")
	require.NoError(t, err)
	assert.Equal(t, "teach-1", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Issue("teach-1", RoleTeacher, "classattend", "key", time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, "other-key", "classattend")
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, _, err := Issue("teach-1", RoleTeacher, "other-service", "key", time.Hour)
	require.NoError(t, err)
	_, err = Parse(token, "key", "classattend")
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, err := Issue("teach-1", RoleTeacher, "classattend", "key", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(token, "key", "classattend")
	assert.Error(t, err)
}
