package cli

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/fwsnd"
	"github.com/lab47/fwsnd/pkg/efw"
	"github.com/stretchr/testify/require"
)

func TestCLI(t *testing.T) {
	t.Run("parses argument quadlets", func(t *testing.T) {
		r := require.New(t)

		words, err := parseWords("1, 0x10,0777")
		r.NoError(err)
		r.Equal([]uint32{1, 0x10, 0777}, words)

		words, err = parseWords("")
		r.NoError(err)
		r.Nil(words)

		_, err = parseWords("1,x")
		r.Error(err)

		_, err = parseWords("0x100000000")
		r.Error(err)
	})

	t.Run("describes events", func(t *testing.T) {
		r := require.New(t)

		r.Equal([]any{"locked", true}, describe(fwsnd.LockChanged{Locked: true}))
		r.Equal([]any{"message", "0000002a"}, describe(fwsnd.Quadlet{Message: 42}))
		r.Equal([]any{"seqnum", uint32(3), "category", uint32(1), "command", uint32(2), "status", efw.StatusOk},
			describe(fwsnd.EfwResponse{Frame: efw.Frame{Seqnum: 3, Category: 1, Command: 2}}))
		r.Nil(describe(fwsnd.Disconnected{}))
	})

	t.Run("requires a device", func(t *testing.T) {
		r := require.New(t)

		c, err := NewCLI(hclog.NewNullLogger(), nil)
		r.NoError(err)

		_, err = c.open(Global{})
		r.Error(err)
	})

	t.Run("reports a busy metrics address", func(t *testing.T) {
		r := require.New(t)

		l, err := net.Listen("tcp", "127.0.0.1:0")
		r.NoError(err)
		defer l.Close()

		select {
		case err := <-serveMetrics(hclog.NewNullLogger(), l.Addr().String()):
			r.Error(err)
		case <-time.After(5 * time.Second):
			r.FailNow("metrics server did not fail")
		}
	})
}
