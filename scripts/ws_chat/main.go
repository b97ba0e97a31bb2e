package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	pseudo := flag.String("pseudo", "cli-user", "nickname")
	lang := flag.String("lang", "en", "locale for translated messages")
	id := flag.String("id", "", "stable user id (required for private messages)")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeRegister, proto.RegisterData{Pseudo: *pseudo, Lang: *lang, UserID: *id}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *pseudo)
	fmt.Println("Type messages and press Enter to send. :join <room>, :create <name>, :pm <pseudo> <text>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		if out.Error != nil {
			fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		switch out.Event {
		case proto.EventReceiveMessage, proto.EventActionMessage, proto.EventCodeMessage:
			var evt proto.Message
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				log.Printf("unmarshal %s: %v", out.Event, err)
				continue
			}
			printMessage(evt)
		case proto.EventRoomHistory:
			var evt proto.RoomHistory
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				log.Printf("unmarshal room_history: %v", err)
				continue
			}
			for _, msg := range evt.History {
				msg.Room = evt.Room
				printMessage(msg)
			}
		case proto.EventSystemMessage, proto.EventPseudoTaken, proto.EventRoomCreateError:
			var evt proto.Text
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				log.Printf("unmarshal %s: %v", out.Event, err)
				continue
			}
			fmt.Printf("* %s\n", evt.Msg)
		case proto.EventUserKicked, proto.EventForceDisconnect:
			var evt proto.Removal
			_ = json.Unmarshal(out.Data, &evt)
			fmt.Printf("* removed: %s\n", evt.Reason)
		case proto.EventRoomCounts, proto.EventRoomUsers, proto.EventChannelList:
			// too chatty for a terminal
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func printMessage(msg proto.Message) {
	switch msg.Type {
	case "action":
		fmt.Printf("[%s] * %s %s\n", msg.Room, msg.Pseudo, msg.Content)
	case "code":
		fmt.Printf("[%s] %s (%s):\n%s\n", msg.Room, msg.Pseudo, msg.Lang, msg.Content)
	default:
		prefix := ""
		if msg.Private {
			prefix = "(pm " + msg.With + ") "
		}
		fmt.Printf("[%s] %s%s: %s\n", msg.Room, prefix, msg.Pseudo, msg.Translated)
	}
}

// parseLine maps a terminal line to an inbound frame.
func parseLine(line string) (string, any) {
	name, rest, _ := strings.Cut(line, " ")
	switch name {
	case ":join":
		return proto.InboundTypeJoin, proto.JoinData{Room: strings.TrimSpace(rest)}
	case ":create":
		return proto.InboundTypeCreateRoom, proto.CreateRoomData{Name: strings.TrimSpace(rest)}
	case ":pm":
		to, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		return proto.InboundTypePrivateMessage, proto.PrivateMessageData{To: to, Msg: text}
	default:
		return proto.InboundTypeSendMessage, proto.SendMessageData{Msg: line}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			typ, data := parseLine(text)
			if err := send(ctx, conn, typ, data); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
