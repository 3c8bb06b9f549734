package portal

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// receiptValue is the payload encoded into an order's QR receipt: the public
// order URL the canteen scanner resolves at pickup.
func receiptValue(publicBaseURL string, orderID int64) string {
	return fmt.Sprintf("%s/api/order/%d", publicBaseURL, orderID)
}

func renderQR(value string) ([]byte, error) {
	return qrcode.Encode(value, qrcode.Medium, qrSize)
}
