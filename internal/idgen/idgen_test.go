package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	tests := []struct {
		name    string
		idType  string
		wantErr bool
	}{
		{name: "empty type uses default", idType: ""},
		{name: "valid uuidv4 type", idType: "uuidv4"},
		{name: "valid uuidv7 type", idType: "uuidv7"},
		{name: "valid nanoid type", idType: "nanoid"},
		{name: "invalid type", idType: "invalid", wantErr: true},
	}

	t.Cleanup(func() {
		Configure(IDGenConfig{})
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Configure(IDGenConfig{Type: tt.idType})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	t.Run("uuidv4", func(t *testing.T) {
		gen, err := NewIDGenerator(TypeUUIDv4, "")
		require.NoError(t, err)
		id, err := uuid.Parse(gen.Generate())
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), id.Version())
	})

	t.Run("uuidv7", func(t *testing.T) {
		gen, err := NewIDGenerator(TypeUUIDv7, "")
		require.NoError(t, err)
		id, err := uuid.Parse(gen.Generate())
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	})

	t.Run("nanoid", func(t *testing.T) {
		gen, err := NewIDGenerator(TypeNanoid, "")
		require.NoError(t, err)
		assert.Len(t, gen.Generate(), 21)
	})

	t.Run("prefix", func(t *testing.T) {
		gen, err := NewIDGenerator(TypeNanoid, "svc")
		require.NoError(t, err)
		id := gen.Generate()
		assert.True(t, strings.HasPrefix(id, "svc_"), id)
		assert.Len(t, id, len("svc_")+21)
	})

	t.Run("unique", func(t *testing.T) {
		gen, err := NewIDGenerator(TypeUUIDv4, "")
		require.NoError(t, err)
		seen := map[string]bool{}
		for i := 0; i < 1000; i++ {
			id := gen.Generate()
			require.False(t, seen[id])
			seen[id] = true
		}
	})
}

func TestRegistration(t *testing.T) {
	t.Cleanup(func() {
		Configure(IDGenConfig{})
	})

	require.NoError(t, Configure(IDGenConfig{Type: TypeUUIDv4, RegistrationPrefix: "svc"}))
	assert.True(t, strings.HasPrefix(Registration(), "svc_"))

	require.NoError(t, Configure(IDGenConfig{}))
	_, err := uuid.Parse(Registration())
	assert.NoError(t, err)
}
