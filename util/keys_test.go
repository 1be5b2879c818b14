package util

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
)

func TestDecodePublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	assert.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "hex",
			input: hex.EncodeToString(pub),
		},
		{
			name:  "hex with 0x prefix",
			input: "0x" + hex.EncodeToString(pub),
		},
		{
			name:  "base58",
			input: base58.Encode(pub),
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "hex too short",
			input:   "deadbeef",
			wantErr: true,
		},
		{
			name:    "base58 too short",
			input:   base58.Encode([]byte{0x01, 0x02, 0x03}),
			wantErr: true,
		},
		{
			name:    "not a key at all",
			input:   "0OIl+/", // contains characters invalid in both encodings
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePublicKey(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, []byte(pub), []byte(got))
		})
	}
}

func TestValidateWalletAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	assert.NoError(t, err)

	assert.NoError(t, ValidateWalletAddress(base58.Encode(pub)))
	assert.Error(t, ValidateWalletAddress("not-a-wallet"))
	assert.Error(t, ValidateWalletAddress(""))
}
