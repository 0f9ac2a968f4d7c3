package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"storefront/internal/domain"
)

var ErrMalformedCallback = errors.New("malformed payment callback")

// Metadata item names sent by the processor on success.
const (
	ItemAmount          = "Amount"
	ItemReceiptNumber   = "MpesaReceiptNumber"
	ItemTransactionDate = "TransactionDate"
	ItemPhoneNumber     = "PhoneNumber"
)

type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes the webhook body into a typed event. Missing metadata
// entries are left empty.
func ParseCallback(data []byte) (domain.CallbackEvent, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb := env.Body.StkCallback
	if cb == nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}
	if cb.CheckoutRequestID == "" {
		return domain.CallbackEvent{}, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	if cb.ResultCode == nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	ev := domain.CallbackEvent{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata != nil {
		md := &domain.CallbackMetadata{}
		for _, item := range cb.CallbackMetadata.Item {
			v := valueString(item.Value)
			switch item.Name {
			case ItemAmount:
				md.Amount = v
			case ItemReceiptNumber:
				md.ReceiptNumber = v
			case ItemTransactionDate:
				md.TransactionDate = v
			case ItemPhoneNumber:
				md.PhoneNumber = v
			}
		}
		ev.Metadata = md
	}
	return ev, nil
}

// valueString keeps numeric values verbatim so long phone numbers and
// timestamps do not pass through float64.
func valueString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	return string(raw)
}

// EncodeCallback renders ev in the processor's wire format.
func EncodeCallback(ev domain.CallbackEvent) ([]byte, error) {
	cb := &stkCallback{
		MerchantRequestID: ev.MerchantRequestID,
		CheckoutRequestID: ev.CheckoutRequestID,
		ResultCode:        &ev.ResultCode,
		ResultDesc:        ev.ResultDesc,
	}
	if md := ev.Metadata; md != nil {
		cb.CallbackMetadata = &struct {
			Item []metadataItem `json:"Item"`
		}{}
		add := func(name, v string) {
			if v == "" {
				return
			}
			raw, _ := json.Marshal(v)
			cb.CallbackMetadata.Item = append(cb.CallbackMetadata.Item, metadataItem{Name: name, Value: raw})
		}
		add(ItemAmount, md.Amount)
		add(ItemReceiptNumber, md.ReceiptNumber)
		add(ItemTransactionDate, md.TransactionDate)
		add(ItemPhoneNumber, md.PhoneNumber)
	}
	var env callbackEnvelope
	env.Body.StkCallback = cb
	return json.Marshal(env)
}
