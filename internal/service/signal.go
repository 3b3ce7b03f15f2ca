package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/contentgraph/publishing/internal/usecase"
)

// SignalChannel is the redis pub/sub channel publish signals travel on.
const SignalChannel = "publishing:signals"

// SignalService broadcasts publish signals over redis pub/sub so that
// realtime subscribers on any instance see commits from every instance.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) PublishedEdition(ctx context.Context, signal usecase.PublishSignal) error {

	jsonstr, err := json.Marshal(signal)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, SignalChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime subscribes to the signal channel and forwards decoded
// signals to output until ctx is done. Undecodable messages are
// dropped.
func (s *SignalService) Realtime(ctx context.Context, output chan<- usecase.PublishSignal) {
	pubsub := s.rdb.Subscribe(ctx, SignalChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var signal usecase.PublishSignal
			if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				slog.ErrorContext(
					ctx, "Failed to decode publish signal",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case output <- signal:
			}
		}
	}
}
