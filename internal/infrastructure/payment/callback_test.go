package payment

import (
	"context"
	"storefront/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const failureBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestParseCallbackSuccess(t *testing.T) {
	ev, err := ParseCallback([]byte(successBody))
	require.NoError(t, err)

	assert.True(t, ev.Succeeded())
	assert.Equal(t, "ws_CO_191220191020363925", ev.CheckoutRequestID)
	require.NotNil(t, ev.Metadata)
	assert.Equal(t, "NLJ7RT61SV", ev.Metadata.ReceiptNumber)
	assert.Equal(t, "20191219102115", ev.Metadata.TransactionDate)
	assert.Equal(t, "254708374149", ev.Metadata.PhoneNumber)
	assert.Equal(t, "1.00", ev.Metadata.Amount)
}

func TestParseCallbackFailure(t *testing.T) {
	ev, err := ParseCallback([]byte(failureBody))
	require.NoError(t, err)
	assert.False(t, ev.Succeeded())
	assert.Equal(t, 1032, ev.ResultCode)
	assert.Equal(t, "Request cancelled by user", ev.ResultDesc)
	assert.Nil(t, ev.Metadata)
}

func TestParseCallbackPartialMetadata(t *testing.T) {
	ev, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_1","ResultCode":0,
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QWE123"}]}}}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Metadata)
	assert.Equal(t, "QWE123", ev.Metadata.ReceiptNumber)
	assert.Empty(t, ev.Metadata.TransactionDate)
	assert.Empty(t, ev.Metadata.PhoneNumber)
}

func TestParseCallbackMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{`,
		"no stkCallback": `{"Body":{}}`,
		"no request id":  `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"no result code": `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_1"}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

func TestEncodeCallbackRoundTrip(t *testing.T) {
	in := domain.CallbackEvent{
		CheckoutRequestID: "ws_1",
		ResultDesc:        "ok",
		Metadata:          &domain.CallbackMetadata{ReceiptNumber: "QWE123", PhoneNumber: "254712345678"},
	}
	data, err := EncodeCallback(in)
	require.NoError(t, err)

	out, err := ParseCallback(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFakeGateway(t *testing.T) {
	g := NewFakeGateway()
	resp, err := g.InitiateCharge(context.Background(), ChargeRequest{PhoneNumber: "0712345678", Amount: 100, Reference: "ORD-1"})
	require.NoError(t, err)

	ev, ok := g.Outcome(resp.CheckoutRequestID)
	require.True(t, ok)
	assert.True(t, ev.Succeeded())
	assert.Equal(t, "254712345678", ev.Metadata.PhoneNumber)
	assert.Equal(t, "100", ev.Metadata.Amount)

	_, ok = g.Outcome("unknown")
	assert.False(t, ok)

	g.RejectRate = 1
	_, err = g.InitiateCharge(context.Background(), ChargeRequest{PhoneNumber: "0712345678", Amount: 100, Reference: "ORD-2"})
	var rej *ChargeRejectedError
	assert.ErrorAs(t, err, &rej)
}
