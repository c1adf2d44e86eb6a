package node

import (
	"bufio"
	"context"
	"errors"
	"net"

	"github.com/labkit/workcell/model/protocol"
)

// ServeTCP accepts connections on the listener and answers one action request
// per connection using the line protocol.  A malformed frame is answered with
// a failed response, a lock conflict with a busy response; neither touches the
// module state.  The loop exits when the context is cancelled or the listener
// is closed.
func (n *Node) ServeTCP(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go n.serveConn(ctx, conn)
	}
}

func (n *Node) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	request, err := protocol.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		n.logger.Warn("rejected tcp request", "node", n.name, "error", err)
		_ = protocol.WriteResponse(conn, protocol.Failed("malformed request: "+err.Error(), ""))
		return
	}

	response, err := n.Execute(ctx, request)
	if err != nil {
		if IsConflict(err) {
			_ = protocol.WriteResponse(conn, &protocol.StepResponse{
				Status:  protocol.StatusBusy,
				Message: err.Error(),
			})
			return
		}
		_ = protocol.WriteResponse(conn, protocol.Failed(err.Error(), ""))
		return
	}
	if err := protocol.WriteResponse(conn, response); err != nil {
		n.logger.Warn("failed to write tcp response", "node", n.name, "error", err)
	}
}
