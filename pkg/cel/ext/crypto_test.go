package ext

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoFuncs(t *testing.T) {
	env := newEnv(t, CryptoFuncs())
	sum := sha256.Sum256([]byte("PERSON-001"))

	runCases(t, env, []evalCase{
		{"xxhash", "xxhash(s)", map[string]any{"s": "PERSON-001"}, fmt.Sprintf("%016x", xxhash.Sum64String("PERSON-001"))},
		{"sha256", "sha256(s)", map[string]any{"s": "PERSON-001"}, hex.EncodeToString(sum[:])},
	})
}

func TestCryptoFuncs_FixedWidth(t *testing.T) {
	env := newEnv(t, CryptoFuncs())
	for _, in := range []string{"", "a", "PERSON-001", "a much longer source value"} {
		out, err := eval(t, env, "xxhash(s)", map[string]any{"s": in})
		require.NoError(t, err)
		assert.Len(t, out.Value(), 16, in)

		out, err = eval(t, env, "sha256(s)", map[string]any{"s": in})
		require.NoError(t, err)
		assert.Len(t, out.Value(), 64, in)
	}
}
