package create2

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	bytecodeHashVersion = 1
	bytecodeWordSize    = 32
	maxBytecodeWords    = 1 << 16
)

// HashBytecode returns the versioned bytecode hash the rollup uses to identify
// deployed code: version byte, a zero byte, the length in 32-byte words as a
// big-endian uint16, then the last 28 bytes of sha256(bytecode).
func HashBytecode(bytecode []byte) (common.Hash, error) {
	if len(bytecode) == 0 {
		return common.Hash{}, fmt.Errorf("bytecode cannot be empty")
	}
	if len(bytecode)%bytecodeWordSize != 0 {
		return common.Hash{}, fmt.Errorf("bytecode length must be a multiple of %d, got %d", bytecodeWordSize, len(bytecode))
	}

	words := len(bytecode) / bytecodeWordSize
	if words >= maxBytecodeWords {
		return common.Hash{}, fmt.Errorf("bytecode is too long: %d words, limit is %d", words, maxBytecodeWords-1)
	}
	if words%2 == 0 {
		return common.Hash{}, fmt.Errorf("bytecode length in words must be odd, got %d", words)
	}

	sum := sha256.Sum256(bytecode)

	var hash common.Hash
	copy(hash[:], sum[:])
	hash[0] = bytecodeHashVersion
	hash[1] = 0
	binary.BigEndian.PutUint16(hash[2:4], uint16(words))
	return hash, nil
}
