package payment_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/trustflowpay/internal/payment"
)

func TestParseResponseBodySingle(t *testing.T) {
	body := []byte(`{"ORDER_ID":"TFP-1-1","AMOUNT":49.90,"RESPONSE_CODE":"000","SURCHARGE":false,"CARD_MASK":null}`)
	got, err := payment.ParseResponseBody(body)
	require.NoError(t, err)
	require.Equal(t, payment.ShapeSingle, got.Shape)
	require.Equal(t, "TFP-1-1", got.Fields.Get("ORDER_ID"))
	require.Equal(t, "49.90", got.Fields.Get("AMOUNT"), "numbers keep their wire text")
	require.Equal(t, "false", got.Fields.Get("SURCHARGE"))
	require.Equal(t, "", got.Fields.Get("CARD_MASK"))
	require.True(t, got.Fields.Has("CARD_MASK"))
	require.Nil(t, got.Meta)
}

func TestParseResponseBodyWrapped(t *testing.T) {
	got, err := payment.ParseResponseBody([]byte(`[{"ORDER_ID":"TFP-1-1","STATUS":"Captured"},{"apiVersion":"2","requestId":17}]`))
	require.NoError(t, err)
	require.Equal(t, payment.ShapeWrapped, got.Shape)
	require.Equal(t, "Captured", got.Fields.Get("STATUS"))
	require.Equal(t, "2", got.Meta.Get("apiVersion"))
	require.Equal(t, "17", got.Meta.Get("requestId"))
	require.False(t, got.Fields.Has("apiVersion"))

	alone, err := payment.ParseResponseBody([]byte(` [ {"ORDER_ID":"X"} ] `))
	require.NoError(t, err)
	require.Equal(t, payment.ShapeWrapped, alone.Shape)
	require.Nil(t, alone.Meta)
}

func TestParseResponseBodyErrors(t *testing.T) {
	cases := map[string]error{
		"":                      payment.ErrEmptyBody,
		"  \n":                  payment.ErrEmptyBody,
		"{":                     payment.ErrInvalidJSON,
		`{"ORDER_ID":"a"} {}`:   payment.ErrInvalidJSON,
		`{"STATUS":"Captured"}`: payment.ErrUnrecognisedShape,
		`[]`:                    payment.ErrUnrecognisedShape,
		`[1,2]`:                 payment.ErrUnrecognisedShape,
		`"ORDER_ID"`:            payment.ErrUnrecognisedShape,
	}
	for body, want := range cases {
		_, err := payment.ParseResponseBody([]byte(body))
		require.ErrorIs(t, err, want, "body %q", body)
	}
}

func TestParamsHelpers(t *testing.T) {
	p := payment.Params{"B": "2", "A": "1", "HASH": "h"}
	require.Equal(t, []string{"A", "B", "HASH"}, p.Keys())
	require.Equal(t, []string{"A", "B"}, p.Without("HASH").Keys())
	require.Len(t, p, 3)

	clone := p.Clone()
	clone["A"] = "changed"
	require.Equal(t, "1", p.Get("A"))

	var empty payment.Params
	require.Equal(t, "", empty.Get("A"))
	require.False(t, empty.Has("A"))

	raw, err := p.Encode()
	require.NoError(t, err)
	decoded, err := payment.DecodeParams(raw)
	require.NoError(t, err)
	require.Equal(t, p, decoded)

	_, err = payment.DecodeParams([]byte("not json"))
	require.ErrorIs(t, err, payment.ErrInvalidJSON)
}
