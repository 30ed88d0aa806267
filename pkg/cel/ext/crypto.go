package ext

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CryptoFuncs returns hashing functions, mostly for pseudonymizing
// *_source_value columns.
//
//   - xxhash(string) -> string: xxHash64, 16 lower-case hex chars
//   - sha256(string) -> string: SHA-256, 64 lower-case hex chars
func CryptoFuncs() cel.EnvOption {
	return cel.Lib(&cryptoLib{})
}

type cryptoLib struct{}

func (l *cryptoLib) LibraryName() string {
	return "cdmcheck.crypto"
}

func (l *cryptoLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		unaryString("xxhash", func(s string) string {
			return fmt.Sprintf("%016x", xxhash.Sum64String(s))
		}),
		unaryString("sha256", func(s string) string {
			sum := sha256.Sum256([]byte(s))
			return hex.EncodeToString(sum[:])
		}),
	}
}

func (l *cryptoLib) ProgramOptions() []cel.ProgramOption {
	return nil
}
