package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Action{
		{Kind: KindService, ID: "svc-1"},
		{Kind: KindDate, Value: "2026-09-07"},
		{Kind: KindTime, Value: "2026-09-07T14:00:00Z"},
		{Kind: KindKeep},
		{Kind: KindAttendConfirm, ID: "appt-9", Value: "tok-abc"},
		{Kind: KindApprove, ID: "appt-9"},
	}
	for _, want := range cases {
		got, err := Decode(want.Encode())
		require.NoError(t, err, "token %q", want.Encode())
		assert.Equal(t, want, got)
	}
}

func TestDecodePreservesColonsInValue(t *testing.T) {
	// RFC3339 values carry colons; only the first two separators split.
	act, err := Decode(Action{Kind: KindTime, Value: "2026-09-07T14:00:00+02:00"}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "2026-09-07T14:00:00+02:00", act.Value)
}

func TestDecodeRejectsUnknownKinds(t *testing.T) {
	for _, token := range []string{"", "mystery", "mystery:1:2", "svcX"} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrUnknownAction, "token %q", token)
	}
}

func TestEncodeStaysWithinCallbackLimit(t *testing.T) {
	token := Action{Kind: KindAttendConfirm, ID: "0a1b2c3d-4e5f-6789-abcd-ef0123456789", Value: "0a1b2c3d"}.Encode()
	assert.LessOrEqual(t, len(token), 64)
}
