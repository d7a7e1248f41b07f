// Package router connects gateway surfaces to game sessions: slash
// commands go to the command registry, everything else is a turn for
// whichever save the surface is playing.
package router

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/kavrell/dustward/internal/command"
	"github.com/kavrell/dustward/internal/game"
	"github.com/kavrell/dustward/internal/gateway"
	"github.com/kavrell/dustward/internal/lore"
	"github.com/kavrell/dustward/internal/session"
)

// MessageRouter routes inbound messages to commands or session turns.
type MessageRouter struct {
	sessions *session.Manager
	gw       *gateway.Gateway
	commands *command.Registry
	book     *lore.Book
	roller   *game.Roller
	logger   *zap.Logger
}

// New creates a MessageRouter.
func New(sessions *session.Manager, gw *gateway.Gateway,
	commands *command.Registry, book *lore.Book, roller *game.Roller,
	logger *zap.Logger) *MessageRouter {
	return &MessageRouter{
		sessions: sessions,
		gw:       gw,
		commands: commands,
		book:     book,
		roller:   roller,
		logger:   logger,
	}
}

// surfaceKey identifies the playing surface. REST channels are
// per-request, so REST play keys on the user instead.
func surfaceKey(msg *gateway.InboundMessage) string {
	if msg.Platform == "rest" {
		return "rest:" + msg.UserID
	}
	return msg.Platform + ":" + msg.ChannelID
}

// Handle routes one inbound message. Signature matches
// gateway.MessageHandler.
func (mr *MessageRouter) Handle(msg *gateway.InboundMessage) {
	ctx := context.Background()
	mr.logger.Debug("routing message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserName),
	)

	key := surfaceKey(msg)
	current, _ := mr.sessions.ForKey(key)

	if strings.HasPrefix(msg.Content, "/") {
		cc := &command.CommandContext{
			Platform:  msg.Platform,
			ChannelID: channelForKey(msg),
			UserID:    msg.UserID,
			UserName:  msg.UserName,
			Session:   current,
			Sessions:  mr.sessions,
			Book:      mr.book,
			Roller:    mr.roller,
			Registry:  mr.commands,
		}
		result, err := mr.commands.Dispatch(ctx, msg.Content, cc)
		if err != nil {
			mr.logger.Error("command dispatch error", zap.Error(err))
			mr.sendReply(ctx, msg, "Command error: "+err.Error())
			return
		}
		mr.sendReply(ctx, msg, result.Content)
		return
	}

	if current == nil {
		mr.sendReply(ctx, msg, "No save is being played here. /new starts one, /load resumes one.")
		return
	}

	result, err := current.Turn(ctx, msg.Content)
	if err != nil {
		if errors.Is(err, session.ErrTurnInProgress) {
			mr.sendReply(ctx, msg, "Still resolving the previous turn — hold on.")
			return
		}
		mr.logger.Error("turn failed",
			zap.String("save", current.ID()), zap.Error(err))
		mr.sendReply(ctx, msg, "The narrator lost the thread: "+err.Error())
		return
	}

	mr.sendReply(ctx, msg, result.Narration)
}

// channelForKey feeds CommandContext.SurfaceKey so /new and /load attach
// to the same key turns resolve against.
func channelForKey(msg *gateway.InboundMessage) string {
	if msg.Platform == "rest" {
		return msg.UserID
	}
	return msg.ChannelID
}

// sendReply sends a text reply back to the originating platform/channel.
func (mr *MessageRouter) sendReply(ctx context.Context, orig *gateway.InboundMessage, text string) {
	err := mr.gw.Send(ctx, &gateway.OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
	})
	if err != nil {
		mr.logger.Error("send reply failed", zap.Error(err))
	}
}
