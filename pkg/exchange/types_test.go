package exchange

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStateDerivation(t *testing.T) {
	cases := []struct {
		name  string
		order Order
		want  OrderState
	}{
		{"new", Order{}, OrderStateCreated},
		{"pending", Order{ID: "a", Status: "pending"}, OrderStatePending},
		{"open", Order{ID: "a", Status: "open", Size: 1}, OrderStateOpen},
		{"partial", Order{ID: "a", Status: "open", Size: 1, FilledSize: 0.5}, OrderStatePartiallyFilled},
		{"filled", Order{ID: "a", Status: "done", DoneReason: "filled", Size: 1, FilledSize: 1}, OrderStateFilled},
		{"canceled", Order{ID: "a", Status: "done", DoneReason: "canceled", Size: 1}, OrderStateCanceled},
		{"rejected", Order{ID: "a", Status: "rejected"}, OrderStateRejected},
		{"replaced", Order{ID: "a", Status: "done", DoneReason: "canceled", ReplacedBy: "b"}, OrderStateReplaced},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.order.State())
		})
	}
	assert.True(t, (&Order{ID: "a", Status: "done"}).IsTerminal())
	assert.False(t, (&Order{ID: "a", Status: "open"}).IsTerminal())
}

func TestFilledPriceGuardsZeroFill(t *testing.T) {
	o := &Order{ExecutedValue: 100}
	assert.Zero(t, o.FilledPrice())
	o.FilledSize = 4
	assert.InDelta(t, 25.0, o.FilledPrice(), 1e-12)
	o.Size = 3
	assert.Zero(t, o.Remaining())
}

func TestErrorMatchesSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", TransportError(CodeNoResponse, errors.New("eof")))
	require.ErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, ErrAPI)

	e := AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, CodeNoResponse, e.Code)
	assert.Contains(t, e.Error(), "no response")

	foreign := AsError(errors.New("boom"))
	assert.Equal(t, KindAPI, foreign.Kind)
	assert.Nil(t, AsError(nil))
}

func TestResultHoldsExactlyOne(t *testing.T) {
	ok := Ok(42)
	assert.True(t, ok.OK())
	assert.Zero(t, ok.Code())
	v, err := ok.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	failed := Fail[int](APIError(CodeAPIMessage, "Insufficient funds"))
	assert.False(t, failed.OK())
	assert.Equal(t, 1, failed.Code())
	assert.Equal(t, "Insufficient funds", failed.Message())
	_, err = failed.Unwrap()
	require.ErrorIs(t, err, ErrAPI)

	assert.NotNil(t, Fail[int](nil).Err())
}
