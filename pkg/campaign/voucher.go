package campaign

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const voucherAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// VoucherCode generates the code printed on campaign-granted vouchers.
func VoucherCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "AUTO-" + uuid.NewString()[:6]
	}
	for i, b := range buf {
		buf[i] = voucherAlphabet[int(b)%len(voucherAlphabet)]
	}
	return "AUTO-" + string(buf)
}
