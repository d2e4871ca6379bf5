package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		ok      bool
		wantErr bool
		want    Command
	}{
		{name: "approve", in: "/approve 123", ok: true, want: Command{Kind: CommandApprove, Subject: 123}},
		{name: "approve keyword", in: "手动通过 123", ok: true, want: Command{Kind: CommandApprove, Subject: 123}},
		{name: "reject no reason", in: "/reject 9", ok: true, want: Command{Kind: CommandReject, Subject: 9}},
		{name: "reject reason", in: "手动拒绝 9  spam  account", ok: true, want: Command{Kind: CommandReject, Subject: 9, Reason: "spam account"}},
		{name: "case insensitive", in: "/APPROVE 5", ok: true, want: Command{Kind: CommandApprove, Subject: 5}},
		{name: "missing id", in: "/approve", ok: true, wantErr: true},
		{name: "bad id", in: "/reject abc", ok: true, wantErr: true},
		{name: "negative id", in: "/approve -3", ok: true, wantErr: true},
		{name: "approve extra args", in: "/approve 3 4", ok: true, wantErr: true},
		{name: "not a command", in: "2", ok: false},
		{name: "prefix only", in: "/approved 3", ok: false},
		{name: "empty", in: "   ", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok, err := ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidInput)
				assert.Contains(t, err.Error(), "usage")
				return
			}
			require.NoError(t, err)
			if tt.ok {
				assert.Equal(t, tt.want, cmd)
			}
		})
	}
}

func TestIsHelp(t *testing.T) {
	assert.True(t, IsHelp("手性碳帮助"))
	assert.True(t, IsHelp(" CChelp "))
	assert.True(t, IsHelp("/cchelp"))
	assert.False(t, IsHelp("help"))
	assert.False(t, IsHelp("cchelp please"))
}

func TestMessage(t *testing.T) {
	m := NewMessage(Mention(1), Text("a"), Image("xx"), Text("b"))
	assert.Equal(t, "ab", m.PlainText())
	assert.True(t, m.HasImage())
	assert.False(t, TextMessage("x").HasImage())
}
