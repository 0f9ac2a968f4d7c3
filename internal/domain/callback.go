package domain

// CallbackEvent is the processor's asynchronous charge outcome, parsed once at
// the webhook boundary. The same event may be delivered more than once.
type CallbackEvent struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	// Present only on success.
	Metadata *CallbackMetadata
}

type CallbackMetadata struct {
	Amount          string
	ReceiptNumber   string
	TransactionDate string
	PhoneNumber     string
}

func (e CallbackEvent) Succeeded() bool {
	return e.ResultCode == 0
}
