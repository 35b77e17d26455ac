package main

import (
	"net/http"

	"github.com/SPAIA/xiao-sense/pkg/broker"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

func streamEventsToWS(ws *websocket.Conn, caster *broker.Broker, quit <-chan struct{}) {
	stream := caster.Subscribe()
	defer caster.Unsubscribe(stream)
	for {
		select {
		case <-quit:
			log.Debug("ending a WS event stream")
			return
		case x := <-stream:
			payload, ok := x.([]byte)
			if !ok {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				// The reader loop notices the dead peer and closes
				// quit; nothing to signal from here.
				return
			}
		}
	}
}

func wsHandler(caster *broker.Broker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		}
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade: ", err)
			return
		}
		defer ws.Close()
		log.Info("websocket client connected")

		// quit is closed, never sent to, so tearing a stream down can
		// not block even when the stream goroutine is already gone.
		var quit chan struct{}
		stopStream := func() {
			if quit != nil {
				close(quit)
				quit = nil
			}
		}
		defer stopStream()

		for {
			messageType, p, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			switch string(p) {
			case "REQUESTSTREAM":
				if quit == nil {
					quit = make(chan struct{})
					go streamEventsToWS(ws, caster, quit)
				}
			case "STOPSTREAM":
				stopStream()
			}
		}
	})
}
