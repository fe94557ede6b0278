package txsource

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/rs/zerolog"
)

// TCPListener is the second built-in transaction source: it accepts
// connections on Addr and treats each as a stream of length-prefixed
// transactions, pushing each one into the queue as a single-transaction
// batch as it arrives.
type TCPListener struct {
	Addr string
	Log  zerolog.Logger
}

// Run implements Source. It listens until ctx is cancelled, accepting
// any number of concurrent client connections.
func (l *TCPListener) Run(ctx context.Context, out chan<- [][]byte) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.Addr)
	if err != nil {
		l.Log.Error().Err(err).Str("addr", l.Addr).Msg("tx listener failed to bind")
		return
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return // listener closed, likely due to ctx cancellation
		}
		go l.handleConn(ctx, conn, out)
	}
}

func (l *TCPListener) handleConn(ctx context.Context, conn net.Conn, out chan<- [][]byte) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n > 1<<20 {
			l.Log.Warn().Uint32("length", n).Msg("tx listener: oversized transaction, dropping connection")
			return
		}
		tx := make([]byte, n)
		if _, err := io.ReadFull(r, tx); err != nil {
			return
		}
		select {
		case out <- [][]byte{tx}:
		case <-ctx.Done():
			return
		}
	}
}
