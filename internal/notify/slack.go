package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// SlackAPI abstracts the Slack client for testing.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
}

// Slack posts alerts and previews to one channel.
type Slack struct {
	api     SlackAPI
	channel string
	logger  zerolog.Logger
}

// NewSlack creates a Slack notifier from a bot token.
func NewSlack(token, channel string, logger zerolog.Logger) *Slack {
	return NewSlackWithAPI(slack.New(token), channel, logger)
}

// NewSlackWithAPI wires an existing client.
func NewSlackWithAPI(api SlackAPI, channel string, logger zerolog.Logger) *Slack {
	return &Slack{api: api, channel: channel, logger: logger.With().Str("component", "notify").Str("channel", ChannelSlack).Logger()}
}

func (s *Slack) Notify(ctx context.Context, a Alert) error {
	text := a.Text()
	_, _, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil)),
	)
	if err != nil {
		return fmt.Errorf("slack alert: %w", err)
	}
	return nil
}

func (s *Slack) Publish(ctx context.Context, it *state.Item, analysis *temporal.Analysis) (state.Notification, error) {
	text := Caption(it, analysis)
	channel, ts, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject("plain_text", text, false, false), nil, nil),
			slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", "`"+it.ID+"`", false, false)),
		),
	)
	if err != nil {
		return state.Notification{}, fmt.Errorf("slack preview: %w", err)
	}
	s.logger.Info().Str("item_id", it.ID).Str("ts", ts).Msg("Preview posted")
	return state.Notification{Channel: ChannelSlack, Target: channel, MessageID: ts}, nil
}

func (s *Slack) Retract(ctx context.Context, ref state.Notification) error {
	channel := ref.Target
	if channel == "" {
		channel = s.channel
	}
	if _, _, err := s.api.DeleteMessageContext(ctx, channel, ref.MessageID); err != nil {
		return fmt.Errorf("slack retract: %w", err)
	}
	return nil
}
