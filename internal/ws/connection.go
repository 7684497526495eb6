package ws

import (
	"context"
	"errors"
	"sync"

	"campus/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type eventHub interface {
	Unregister(sess *Session)
	Announce(sess *Session, name string)
	Join(sess *Session, room string)
	Dispatch(sess *Session, ev models.ClientEvent)
}

// Connection owns one websocket for its lifetime: a read pump feeding
// client events into the hub, and a write loop draining the session's
// server events onto the wire.
type Connection struct {
	ws         wsConnection
	hub        eventHub
	sess       *Session
	fromClient chan models.ClientEvent
	errorCh    chan error
}

func NewConnection(
	hub eventHub,
	ws wsConnection,
	sess *Session,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		sess:       sess,
		fromClient: make(chan models.ClientEvent),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Unregister(c.sess)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			if err := c.processClientEvent(ev); err != nil {
				return err
			}
		case ev := <-c.sess.Events():
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientEvent(ev models.ClientEvent) error {
	switch ev.Type {
	case models.ClientEventJoin:
		c.hub.Announce(c.sess, ev.Name)
	case models.ClientEventJoinRoom:
		c.hub.Join(c.sess, ev.Room)
	case models.ClientEventSendMessage:
		c.hub.Dispatch(c.sess, ev)
	}

	return nil
}
