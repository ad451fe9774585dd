package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
	}{
		{"simple secret", "authorization-code"},
		{"long secret", strings.Repeat("a", 100)},
		{"empty secret", ""},
		{"unicode secret", "пароль密码"},
		{"base64url secret", MustGenerateToken(TokenSize256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest, err := HashSecret(tt.secret)
			require.NoError(t, err)

			require.True(t, strings.HasPrefix(digest, "$argon2id$v=19$"),
				"digest should be in PHC format")
			parts := strings.Split(digest, "$")
			require.Len(t, parts, 6)
			require.NotEmpty(t, parts[4], "salt")
			require.NotEmpty(t, parts[5], "hash")

			require.NoError(t, VerifySecret(tt.secret, digest))
		})
	}
}

func TestHashSecretSaltsAreFresh(t *testing.T) {
	t.Parallel()

	a, err := HashSecret("same-secret")
	require.NoError(t, err)
	b, err := HashSecret("same-secret")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "two hashes of one secret must differ")
	require.NoError(t, VerifySecret("same-secret", a))
	require.NoError(t, VerifySecret("same-secret", b))
}

func TestVerifySecretMismatch(t *testing.T) {
	t.Parallel()

	digest, err := HashSecret("correct-secret")
	require.NoError(t, err)

	require.ErrorIs(t, VerifySecret("wrong-secret", digest), ErrSecretMismatch)
	require.ErrorIs(t, VerifySecret("", digest), ErrSecretMismatch)
}

func TestVerifySecretCorruptDigest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		digest string
	}{
		{"empty", ""},
		{"garbage", "not a digest"},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA"},
		{"bad parameters", "$argon2id$v=19$m=a,t=b,p=c$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{"bad hash encoding", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!"},
		{"empty hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, VerifySecret("anything", tt.digest), ErrSecretMismatch)
		})
	}
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"512-bit token", TokenSize512},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			other, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, other, "tokens should be unique")
		})
	}
}

func TestGenerateTokenInvalidSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestMustGenerateTokenPanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { MustGenerateToken(0) })
}
