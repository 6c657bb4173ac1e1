package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHook(t *testing.T) {
	hook, err := NewHook(HookTypePackage, "user-1", "@cnpmcore/foo", "http://foo.com", "secret")
	require.NoError(t, err)

	assert.NotEmpty(t, hook.HookID)
	assert.Equal(t, HookTypePackage, hook.Type)
	assert.Equal(t, "@cnpmcore/foo", hook.Name)
	assert.True(t, hook.Enabled)
	assert.Equal(t, hook.CreatedAt, hook.UpdatedAt)
}

func TestNewHookValidation(t *testing.T) {
	_, err := NewHook("bogus", "user-1", "foo", "http://foo.com", "")
	assert.Error(t, err)

	_, err = NewHook(HookTypePackage, "user-1", "", "http://foo.com", "")
	assert.Error(t, err)

	_, err = NewHook(HookTypePackage, "user-1", "foo", "", "")
	assert.Error(t, err)
}

func TestHookMatches(t *testing.T) {
	tests := []struct {
		name       string
		hook       Hook
		targetName string
		ownerID    string
		want       bool
	}{
		{
			name:       "package exact match",
			hook:       Hook{Type: HookTypePackage, Name: "@cnpmcore/foo"},
			targetName: "@cnpmcore/foo",
			want:       true,
		},
		{
			name:       "package name mismatch",
			hook:       Hook{Type: HookTypePackage, Name: "@cnpmcore/foo"},
			targetName: "@cnpmcore/foobar",
			want:       false,
		},
		{
			name:       "scope matches any package under it",
			hook:       Hook{Type: HookTypeScope, Name: "@cnpmcore"},
			targetName: "@cnpmcore/foo",
			want:       true,
		},
		{
			name:       "scope does not match the bare scope name",
			hook:       Hook{Type: HookTypeScope, Name: "@cnpmcore"},
			targetName: "@cnpmcore",
			want:       false,
		},
		{
			name:       "scope prefix must stop at the separator",
			hook:       Hook{Type: HookTypeScope, Name: "@cnpm"},
			targetName: "@cnpmcore/foo",
			want:       false,
		},
		{
			name:       "owner match on owner id",
			hook:       Hook{Type: HookTypeOwner, OwnerID: "user-1"},
			targetName: "anything",
			ownerID:    "user-1",
			want:       true,
		},
		{
			name:       "owner hooks never match an unknown owner",
			hook:       Hook{Type: HookTypeOwner, OwnerID: "user-1"},
			targetName: "anything",
			ownerID:    "",
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hook.Matches(tt.targetName, tt.ownerID))
		})
	}
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, "@cnpmcore", ScopeOf("@cnpmcore/foo"))
	assert.Equal(t, "", ScopeOf("lodash"))
	assert.Equal(t, "", ScopeOf("@cnpmcore"))
	assert.Equal(t, "", ScopeOf(""))
}
