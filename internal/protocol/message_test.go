package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeInput(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	data, err := Encode(NewInput("keydown", "ShiftLeft", now))
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"input","eventType":"keydown","code":"ShiftLeft","timestamp":1700000000123}`, string(data))
}

func TestEncodeReset(t *testing.T) {
	data, err := Encode(NewReset(time.UnixMilli(42)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reset","timestamp":42}`, string(data))
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := Encode(Message{Type: "chat"})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Encode(Message{Type: TypeInput, EventType: "keydown"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Message
		wantErr error
	}{
		{
			name: "input",
			data: `{"type":"input","eventType":"keyup","code":"KeyW","timestamp":7}`,
			want: Message{Type: TypeInput, EventType: "keyup", Code: "KeyW", Timestamp: 7},
		},
		{
			name: "reset without timestamp",
			data: `{"type":"reset"}`,
			want: Message{Type: TypeReset},
		},
		{
			name: "open control frame",
			data: `{"type":"open"}`,
			want: Message{Type: TypeOpen},
		},
		{
			name: "extra fields ignored",
			data: `{"type":"reset","timestamp":1,"from":"host"}`,
			want: Message{Type: TypeReset, Timestamp: 1},
		},
		{name: "not json", data: `keydown KeyW`, wantErr: ErrMalformed},
		{name: "array", data: `[1,2]`, wantErr: ErrMalformed},
		{name: "unknown type", data: `{"type":"chat"}`, wantErr: ErrUnknownType},
		{name: "missing type", data: `{}`, wantErr: ErrUnknownType},
		{name: "bad eventType", data: `{"type":"input","eventType":"keypress","code":"KeyW"}`, wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeek(t *testing.T) {
	assert.Equal(t, TypeClose, Peek([]byte(`{"type":"close"}`)))
	assert.Equal(t, TypeInput, Peek([]byte(`{"type":"input","code":"x"}`)))
	assert.Equal(t, "", Peek([]byte(`nope`)))
}

func TestIsControl(t *testing.T) {
	assert.True(t, Control(TypeOpen).IsControl())
	assert.True(t, Control(TypeClose).IsControl())
	assert.False(t, NewReset(time.Now()).IsControl())
}
