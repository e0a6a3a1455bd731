package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullName(t *testing.T) {
	ada := "Ada"
	lovelace := "Lovelace"
	empty := ""

	tests := []struct {
		name string
		user User
		want string
	}{
		{"both names", User{FirstName: &ada, LastName: &lovelace}, "Ada Lovelace"},
		{"first only", User{FirstName: &ada}, "Ada"},
		{"last only", User{LastName: &lovelace}, "Lovelace"},
		{"neither", User{}, ""},
		{"empty strings", User{FirstName: &empty, LastName: &empty}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.FullName())
		})
	}
}

func TestUserJSONCarriesFullName(t *testing.T) {
	ada := "Ada"
	lovelace := "Lovelace"
	user := User{
		ID:           7,
		Email:        "ada@example.com",
		FirstName:    &ada,
		LastName:     &lovelace,
		PasswordHash: "secret-hash",
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Ada Lovelace", decoded["fullname"])
	assert.NotContains(t, string(data), "secret-hash")
}

func TestUserJSONFullNameEmptyWithoutNames(t *testing.T) {
	data, err := json.Marshal(&User{ID: 7, Email: "x@example.com"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "", decoded["fullname"])
}
