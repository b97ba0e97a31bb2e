package http

import (
	"encoding/json"

	"github.com/vovakirdan/lexyo-server/internal/core"
	"github.com/vovakirdan/lexyo-server/internal/proto"
	"github.com/vovakirdan/lexyo-server/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// decode unmarshals inbound data, treating a missing payload as empty.
func decode(inbound proto.Inbound, v any) *proto.Error {
	if len(inbound.Data) == 0 || string(inbound.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(inbound.Data, v); err != nil {
		return badRequest("invalid payload")
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeRegister:
		var reg proto.RegisterData
		if perr := decode(inbound, &reg); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:         core.CommandRegister,
			Pseudo:       reg.Pseudo,
			Locale:       reg.Lang,
			Identity:     reg.UserID,
			CaptchaToken: reg.CaptchaToken,
		}, nil
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if perr := decode(inbound, &join); perr != nil {
			return nil, perr
		}
		if join.Room == "" {
			return nil, badRequest("room is required")
		}
		return &core.Command{Kind: core.CommandJoin, Room: join.Room}, nil
	case proto.InboundTypeCreateRoom:
		var create proto.CreateRoomData
		if perr := decode(inbound, &create); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandCreateRoom, Room: create.Name}, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if perr := decode(inbound, &msg); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandSendMessage, Text: msg.Msg}, nil
	case proto.InboundTypeOpenPrivate:
		var open proto.OpenPrivateData
		if perr := decode(inbound, &open); perr != nil {
			return nil, perr
		}
		if open.With == "" {
			return nil, badRequest("with is required")
		}
		return &core.Command{Kind: core.CommandOpenPrivate, Target: open.With}, nil
	case proto.InboundTypeSwitchPrivate:
		var sw proto.SwitchPrivateData
		if perr := decode(inbound, &sw); perr != nil {
			return nil, perr
		}
		if sw.Room == "" {
			return nil, badRequest("room is required")
		}
		return &core.Command{Kind: core.CommandSwitchPrivate, Room: sw.Room}, nil
	case proto.InboundTypePrivateMessage:
		var pm proto.PrivateMessageData
		if perr := decode(inbound, &pm); perr != nil {
			return nil, perr
		}
		if pm.To == "" {
			return nil, badRequest("to is required")
		}
		return &core.Command{Kind: core.CommandSendPrivate, Target: pm.To, Text: pm.Msg}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func event(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventChannelList:
		return event(proto.EventChannelList, proto.ChannelList{Channels: nonNil(ev.Channels)})
	case core.EventPseudoTaken:
		return event(proto.EventPseudoTaken, proto.Text{Msg: ev.Text})
	case core.EventJoinedRoom:
		return event(proto.EventJoinedRoom, proto.JoinedRoom{
			Room:    ev.Room,
			Pseudo:  ev.Pseudo,
			Color:   ev.Color,
			IsAdmin: ev.Admin,
		})
	case core.EventNotice:
		return event(proto.EventSystemMessage, proto.Text{Room: ev.Room, Msg: ev.Text})
	case core.EventRoomUsers:
		users := make([]proto.User, 0, len(ev.Users))
		for _, u := range ev.Users {
			users = append(users, proto.User{
				Pseudo:  u.Pseudo,
				Lang:    u.Locale,
				Color:   u.Color,
				UserID:  u.Identity,
				IsAdmin: u.Admin,
				IsMod:   u.Moderator,
			})
		}
		return event(proto.EventRoomUsers, proto.RoomUsers{Room: ev.Room, Users: users})
	case core.EventRoomCounts:
		counts := ev.Counts
		if counts == nil {
			counts = map[string]int{}
		}
		return event(proto.EventRoomCounts, proto.RoomCounts{Counts: counts})
	case core.EventRoomHistory:
		history := make([]proto.Message, 0, len(ev.History))
		for _, entry := range ev.History {
			history = append(history, messageFromRecord(ev.Room, entry.Record, entry.Translated, entry.TargetLang))
		}
		return event(proto.EventRoomHistory, proto.RoomHistory{Room: ev.Room, History: history})
	case core.EventSwitchedRoom:
		return event(proto.EventSwitchedRoom, proto.RoomRef{Room: ev.Room})
	case core.EventRoomCreated:
		return event(proto.EventRoomCreated, proto.RoomRef{Room: ev.Room})
	case core.EventRoomCreateError:
		return event(proto.EventRoomCreateError, proto.Text{Msg: ev.Text})
	case core.EventMessage, core.EventAction, core.EventCode:
		if ev.Message == nil {
			return errorOutbound(nil)
		}
		d := ev.Message
		msg := messageFromRecord(ev.Room, d.Record, d.Translated, d.TargetLang)
		msg.Private = d.Private
		msg.With = d.With
		return event(messageEventName(ev.Kind), msg)
	case core.EventUserKicked:
		return event(proto.EventUserKicked, proto.Removal{Room: ev.Room, Reason: ev.Reason})
	case core.EventForceDisconnect:
		return event(proto.EventForceDisconnect, proto.Removal{Room: ev.Room, Reason: ev.Reason})
	case core.EventIdentityUpdate:
		return event(proto.EventIdentityUpdate, proto.IdentityUpdate{Pseudo: ev.Pseudo, Color: ev.Color, IsAdmin: ev.Admin})
	case core.EventOpenPrivate:
		return event(proto.EventOpenPrivateRoom, proto.OpenPrivateRoom{Room: ev.Room, With: ev.With})
	case core.EventRoomDeleted:
		return event(proto.EventRoomDeleted, proto.RoomRef{Room: ev.Room})
	default:
		return errorOutbound(ev.Error)
	}
}

func errorOutbound(err *core.CoreError) proto.Outbound {
	if err == nil {
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: err.Code, Msg: err.Message},
	}
}

func messageEventName(kind core.EventKind) string {
	switch kind {
	case core.EventAction:
		return proto.EventActionMessage
	case core.EventCode:
		return proto.EventCodeMessage
	default:
		return proto.EventReceiveMessage
	}
}

func messageFromRecord(room string, rec store.Record, translated, target string) proto.Message {
	msg := proto.Message{
		Type:      string(rec.Kind()),
		Room:      room,
		Pseudo:    rec.Pseudo,
		Color:     rec.Color,
		Timestamp: unixSeconds(rec),
	}
	switch b := rec.Body.(type) {
	case store.Text:
		msg.Original = b.Original
		msg.SourceLang = b.SourceLang
		msg.Translated = b.Original
		if translated != "" {
			msg.Translated = translated
		}
		msg.TargetLang = target
	case store.Action:
		msg.Content = b.Content
	case store.Code:
		msg.Lang = b.Lang
		msg.Content = b.Content
	}
	return msg
}

func unixSeconds(rec store.Record) float64 {
	if rec.Timestamp.IsZero() {
		return 0
	}
	return float64(rec.Timestamp.UnixMicro()) / 1e6
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
