package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/lexyo-server/internal/proto"
)

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	pseudo := flag.String("pseudo", "tester", "nickname to register with")
	lang := flag.String("lang", "en", "locale announced at registration")
	id := flag.String("id", "", "stable user id (optional)")
	room := flag.String("room", "", "public room to join before sending (default room when empty)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeRegister, proto.RegisterData{Pseudo: *pseudo, Lang: *lang, UserID: *id}); err != nil {
		return err
	}

	sent := false
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()
		if out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}

		switch out.Event {
		case proto.EventPseudoTaken:
			var evt proto.Text
			_ = json.Unmarshal(out.Data, &evt)
			return fmt.Errorf("registration refused: %s", evt.Msg)
		case proto.EventJoinedRoom:
			var evt proto.JoinedRoom
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal joined_room: %w", err)
			}
			fmt.Printf("Registered as %s in %s\n", evt.Pseudo, evt.Room)
			if *room != "" && *room != evt.Room {
				if err := send(proto.InboundTypeJoin, proto.JoinData{Room: *room}); err != nil {
					return err
				}
				continue
			}
			if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{Msg: *text}); err != nil {
				return err
			}
			sent = true
		case proto.EventSwitchedRoom:
			if !sent {
				if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{Msg: *text}); err != nil {
					return err
				}
				sent = true
			}
		case proto.EventSystemMessage:
			var evt proto.Text
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("System: [%s] %s\n", evt.Room, evt.Msg)
			}
		case proto.EventReceiveMessage:
			var evt proto.Message
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				fmt.Printf("Raw data: %s\n", out.Data)
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: room=%s pseudo=%s text=%q ts=%.3f\n", evt.Room, evt.Pseudo, evt.Translated, evt.Timestamp)
			if evt.Pseudo == *pseudo {
				return nil
			}
		default:
			// keep looping for our own message
		}
	}
}
