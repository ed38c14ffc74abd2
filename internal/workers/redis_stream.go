package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	"github.com/open-builders/giveaway-tickets/internal/platform/redis"
	"github.com/open-builders/giveaway-tickets/internal/service/boost"
)

const (
	eventChatBoost = "chat_boost"
	readBlock      = 5 * time.Second
)

// ActiveParticipations lists a user's entries in running giveaways.
type ActiveParticipations interface {
	ListActiveByUser(ctx context.Context, userID int64) ([]*dp.Participation, error)
}

// BoostVerifier re-checks a user's boosts for one channel.
type BoostVerifier interface {
	VerifyBoost(ctx context.Context, giveawayID string, userID, channelID int64) (*boost.Result, error)
}

// RedisStreamWorker consumes bot events and re-verifies boosts the bot saw.
type RedisStreamWorker struct {
	rdb            *redis.Client
	stream         string
	group          string
	consumer       string
	participations ActiveParticipations
	boosts         BoostVerifier
}

func NewRedisStreamWorker(rdb *redis.Client, stream, group string, participations ActiveParticipations, boosts BoostVerifier) *RedisStreamWorker {
	return &RedisStreamWorker{
		rdb:            rdb,
		stream:         stream,
		group:          group,
		consumer:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		participations: participations,
		boosts:         boosts,
	}
}

// Start reads the stream until ctx is cancelled.
func (w *RedisStreamWorker) Start(ctx context.Context) {
	err := w.rdb.XGroupCreateMkStream(ctx, w.stream, w.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		logger.Error().Err(err).Str("stream", w.stream).Msg("failed to create consumer group")
	}
	logger.Info().Str("stream", w.stream).Str("consumer", w.consumer).Msg("redis stream worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("redis stream worker stopped")
			return
		default:
		}

		entries, err := w.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    w.group,
			Consumer: w.consumer,
			Streams:  []string{w.stream, ">"},
			Count:    10,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if !errors.Is(err, goredis.Nil) && ctx.Err() == nil {
				logger.Error().Err(err).Msg("failed to read from stream")
				time.Sleep(time.Second)
			}
			continue
		}

		for _, stream := range entries {
			for _, msg := range stream.Messages {
				w.processMessage(ctx, msg.Values)
				if err := w.rdb.XAck(ctx, w.stream, w.group, msg.ID).Err(); err != nil {
					logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to ack stream message")
				}
			}
		}
	}
}

func (w *RedisStreamWorker) processMessage(ctx context.Context, values map[string]interface{}) {
	eventType, _ := values["type"].(string)
	if eventType != eventChatBoost {
		return
	}
	userID, err := int64Field(values, "user_id")
	if err != nil {
		logger.Warn().Err(err).Interface("event", values).Msg("invalid chat_boost event")
		return
	}
	channelID, err := int64Field(values, "channel_id")
	if err != nil {
		logger.Warn().Err(err).Interface("event", values).Msg("invalid chat_boost event")
		return
	}

	parts, err := w.participations.ListActiveByUser(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list active participations")
		return
	}
	for _, p := range parts {
		if !p.Conditions.BoostEnabled {
			continue
		}
		res, err := w.boosts.VerifyBoost(ctx, p.GiveawayID, userID, channelID)
		switch apperrors.CodeOf(err) {
		case "":
			if res.TicketsAdded > 0 {
				logger.Info().
					Str("giveaway_id", p.GiveawayID).
					Int64("user_id", userID).
					Int64("channel_id", channelID).
					Int("tickets_added", res.TicketsAdded).
					Msg("boost event credited")
			}
		case apperrors.ErrCodeChannelNotConfigured, apperrors.ErrCodeBoostsDisabled:
		default:
			logger.Warn().Err(err).Str("giveaway_id", p.GiveawayID).Int64("user_id", userID).Msg("boost event verification failed")
		}
	}
}

func int64Field(values map[string]interface{}, key string) (int64, error) {
	raw, ok := values[key].(string)
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
