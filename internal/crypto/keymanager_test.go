package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptKey(t *testing.T) {
	data, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = DecryptKey(data, "wrong")
	assert.ErrorContains(t, err, "wrong password")
}

func TestEncryptKeyValidates(t *testing.T) {
	_, err := EncryptKey(testKey, "")
	assert.Error(t, err)
	_, err = EncryptKey("abcd", "pw")
	assert.ErrorContains(t, err, "32-byte")
	_, err = DecryptKey([]byte(`{"version":9}`), "pw")
	assert.ErrorContains(t, err, "version")
}

func TestLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, WriteEncryptedKey(path, testKey, "pw"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tests := []struct {
		name    string
		src     KeySource
		wantErr bool
	}{
		{"raw key wins", KeySource{RawPrivateKey: "0x" + testKey, EncryptedKeyPath: "/nonexistent"}, false},
		{"encrypted file", KeySource{EncryptedKeyPath: path, KeyPassword: "pw"}, false},
		{"wrong password", KeySource{EncryptedKeyPath: path, KeyPassword: "nope"}, true},
		{"missing file", KeySource{EncryptedKeyPath: filepath.Join(t.TempDir(), "x"), KeyPassword: "pw"}, true},
		{"nothing configured", KeySource{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadKey(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testKey, key)
		})
	}
}
