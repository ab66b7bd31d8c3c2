package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ChatMemberGetter is the part of *tgbotapi.BotAPI the checker needs.
type ChatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ChannelChecker asks the Bot API whether a user has joined a channel. The
// bot must be an administrator of the channel.
type ChannelChecker struct {
	bot     ChatMemberGetter
	channel string
	logger  *zap.Logger
}

// NewChannelChecker checks membership of channel, given either as @username
// or as a numeric chat id.
func NewChannelChecker(bot ChatMemberGetter, channel string, logger *zap.Logger) *ChannelChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelChecker{bot: bot, channel: strings.TrimSpace(channel), logger: logger}
}

func (c *ChannelChecker) IsMember(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("telegram user id %q: %w", userID, err)
	}

	chat := tgbotapi.ChatConfigWithUser{UserID: id}
	if chatID, err := strconv.ParseInt(c.channel, 10, 64); err == nil {
		chat.ChatID = chatID
	} else {
		chat.SuperGroupUsername = c.channel
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}

	c.logger.Debug("Channel membership checked",
		zap.String("user_id", userID),
		zap.String("channel", c.channel),
		zap.String("status", member.Status),
	)
	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	}
	return false, nil
}
