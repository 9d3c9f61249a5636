package proxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/metrics"
)

// CloseStatus is the first-observed closure of either pump direction. It
// decides whether the session returns to idle or keeps the status another
// endpoint wrote (see Reserved).
type CloseStatus struct {
	Code   int
	Reason string
}

// Forward runs the two message pumps (client→upstream, upstream→client)
// until either direction observes closure or an error. Frames pass through
// unchanged and in order per direction; there is no cross-direction
// ordering guarantee. As soon as one pump ends, the other is unblocked via
// an immediate read deadline so neither outlives the call.
//
// The returned status reflects whichever closure was observed first.
func Forward(ctx context.Context, client, upstream Conn) CloseStatus {
	metrics.SignalingConnectionsActive.Inc()
	defer metrics.SignalingConnectionsActive.Dec()

	var (
		once   sync.Once
		status = CloseStatus{Code: websocket.CloseNormalClosure}
	)
	record := func(err error) {
		once.Do(func() {
			status = classify(err)
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := pump(client, upstream, "inbound")
		record(err)
		return err
	})
	g.Go(func() error {
		err := pump(upstream, client, "outbound")
		record(err)
		return err
	})

	// The losing pump blocks in ReadMessage with no context support, so
	// expire its read deadline the moment the group context ends. Writes
	// stay usable: the caller still sends a proper close frame.
	unblock := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.SetReadDeadline(time.Now())
		_ = upstream.SetReadDeadline(time.Now())
		close(unblock)
	}()

	_ = g.Wait()
	<-unblock
	return status
}

// pump relays messages from src to dst until a read or write fails.
func pump(src, dst Conn, direction string) error {
	for {
		msgType, payload, err := src.ReadMessage()
		if err != nil {
			return err
		}
		if err := dst.WriteMessage(msgType, payload); err != nil {
			return err
		}
		metrics.ForwardedMessagesTotal.WithLabelValues(direction).Inc()
	}
}

// classify maps a pump error to the close status reported to the caller.
func classify(err error) CloseStatus {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return CloseStatus{Code: closeErr.Code, Reason: closeErr.Text}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CloseStatus{
			Code:   CodeConnectTimeout,
			Reason: "The signaling connection timed out.",
		}
	}

	return CloseStatus{Code: websocket.CloseAbnormalClosure}
}
