package simulator

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// dltHash derives the ledger reference stamped on settled transactions.
func dltHash(parts ...any) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprint(&sb, p)
	}
	return crypto.Keccak256Hash([]byte(sb.String())).Hex()
}

// newWalletAddress returns a random checksummed address.
func newWalletAddress() string {
	id := uuid.New()
	h := crypto.Keccak256(id[:])
	return common.BytesToAddress(h[12:]).Hex()
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
