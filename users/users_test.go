package users_test

import (
	"testing"

	"github.com/jrsteele09/solugarde-client/users"
	"github.com/stretchr/testify/require"
)

func TestUser_Name(t *testing.T) {
	tests := []struct {
		name string
		user *users.User
		want string
	}{
		{"display name wins", &users.User{DisplayName: "Marie C.", FirstName: "Marie", LastName: "Curie"}, "Marie C."},
		{"first and last", &users.User{FirstName: "Marie", LastName: "Curie"}, "Marie Curie"},
		{"first only", &users.User{FirstName: "Marie"}, "Marie"},
		{"email fallback", &users.User{Email: "marie@example.com"}, "marie@example.com"},
		{"nothing known", &users.User{}, "User"},
		{"nil user", nil, "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.user.Name())
		})
	}
}

func TestUser_Initials(t *testing.T) {
	require.Equal(t, "MC", (&users.User{FirstName: "marie", LastName: "curie"}).Initials())
	require.Equal(t, "JD", (&users.User{DisplayName: "jane doe"}).Initials())
	require.Equal(t, "J", (&users.User{DisplayName: "jane"}).Initials())
	require.Equal(t, "A", (&users.User{Email: "admin@example.com"}).Initials())
	require.Equal(t, "U", (&users.User{}).Initials())
}

func TestUser_Roles(t *testing.T) {
	admin := &users.User{ID: "u1", Role: users.RoleAdmin}
	require.True(t, admin.IsAdmin())
	require.False(t, admin.IsClient())
	require.True(t, admin.HasAnyRole(users.RoleClient, users.RoleAdmin))
	require.False(t, admin.HasAnyRole(users.RoleRemplacant))

	var nobody *users.User
	require.False(t, nobody.IsAdmin())
	require.False(t, nobody.HasAnyRole(users.RoleAdmin))
}

func TestParseRole(t *testing.T) {
	r, err := users.ParseRole("remplacant")
	require.NoError(t, err)
	require.Equal(t, users.RoleRemplacant, r)
	require.Equal(t, "Substitute Staff", r.Label())

	_, err = users.ParseRole("superuser")
	require.Error(t, err)
}

func TestUser_Clone(t *testing.T) {
	u := &users.User{ID: "u1", Garderie: &users.GarderieRef{ID: "g1", Name: "Les Petits"}}
	c := u.Clone()
	c.Garderie.Name = "changed"
	require.Equal(t, "Les Petits", u.Garderie.Name)
	require.Nil(t, (*users.User)(nil).Clone())
}
