package gateway

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

func (s *Session) readerTask(ctx context.Context) {
	// The processor stops as soon as the client is gone.
	defer s.taskRunner.Cancel()

	for {
		kind, data, err := s.socket.ReadMessage()

		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Infof("Client disconnected.")
			} else {
				s.log.Infof("Reader task stopped: %v", err)
			}

			s.setErr(fmt.Errorf("%w: %v", ErrConnectionClosed, err))

			return
		}

		if kind != websocket.TextMessage || len(data) == 0 {
			s.log.Warnf("No valid text received.")
			continue
		}

		select {
		case <-ctx.Done():
			s.log.Debugf("Reader task stopped.")
			return
		case s.inbox <- data:
		}
	}
}

func (s *Session) processorTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.log.Debugf("Processor task stopped.")
			return
		case data := <-s.inbox:
			reply := s.handleFrame(ctx, data)

			// The client is gone, there is nobody to reply to.
			if ctx.Err() != nil {
				s.log.Infof("Dropping reply: %s", reply.Message)
				return
			}

			if err := s.socket.WriteJSON(reply); err != nil {
				s.log.Errorf("Error while writing: %v", err)
				s.setErr(fmt.Errorf("%w: %v", ErrConnectionClosed, err))

				// Unblock the reader.
				s.socket.Close()

				return
			}
		}
	}
}
