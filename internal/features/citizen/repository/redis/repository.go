package redis

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

const (
	citizenKeyPrefix = "citizen:"
	handleKeyPrefix  = "handle:"
	mailboxKeyPrefix = "mail:"

	citizenChannelPrefix = "citizen.changed."
	mailboxChannelPrefix = "mail.changed."
)

type remoteStore struct {
	client *redis.Client
}

// NewRemoteStore returns the redis-backed remote store. Records are stored
// as JSON blobs under citizen:<code>, the handle index under
// handle:<lower>, and mailboxes as lists under mail:<code>. Every mutation
// publishes on a per-code channel so subscriptions get push delivery.
func NewRemoteStore(client *redis.Client) repository.RemoteStore {
	return &remoteStore{client: client}
}

func citizenKey(code string) string  { return citizenKeyPrefix + code }
func handleKey(handle string) string { return handleKeyPrefix + strings.ToLower(handle) }
func mailboxKey(code string) string  { return mailboxKeyPrefix + code }

func (r *remoteStore) FetchByCode(ctx context.Context, code string) (*models.Citizen, error) {
	raw, err := r.client.Get(ctx, citizenKey(code)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NewIdentityNotFound(code)
		}
		return nil, apperrors.NewRemoteUnavailable("fetch citizen", err)
	}

	var citizen models.Citizen
	if err := json.Unmarshal(raw, &citizen); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "malformed citizen record")
	}

	return models.Normalize(&citizen), nil
}

func (r *remoteStore) FetchByHandle(ctx context.Context, handle string) (string, error) {
	code, err := r.client.Get(ctx, handleKey(handle)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", apperrors.NewIdentityNotFound(handle)
		}
		return "", apperrors.NewRemoteUnavailable("fetch handle", err)
	}
	return code, nil
}

func (r *remoteStore) Upsert(ctx context.Context, citizen *models.Citizen) error {
	raw, err := json.Marshal(models.Normalize(citizen))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal citizen record")
	}

	// A handle change must release the old index entry, or the freed
	// handle stays claimed forever.
	var staleHandle string
	stored, err := r.FetchByCode(ctx, citizen.Code)
	switch {
	case err == nil:
		if stored.Handle != "" && !strings.EqualFold(stored.Handle, citizen.Handle) {
			staleHandle = stored.Handle
		}
	case apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound):
		// New record, nothing to release.
	default:
		return err
	}

	if citizen.Handle != "" {
		claimed, err := r.client.SetNX(ctx, handleKey(citizen.Handle), citizen.Code, 0).Result()
		if err != nil {
			return apperrors.NewRemoteUnavailable("claim handle", err)
		}
		if !claimed {
			owner, err := r.client.Get(ctx, handleKey(citizen.Handle)).Result()
			if err != nil && err != redis.Nil {
				return apperrors.NewRemoteUnavailable("check handle owner", err)
			}
			if owner != citizen.Code {
				return apperrors.NewHandleTaken(citizen.Handle)
			}
		}
	}

	pipe := r.client.TxPipeline()
	if staleHandle != "" {
		pipe.Del(ctx, handleKey(staleHandle))
	}
	pipe.Set(ctx, citizenKey(citizen.Code), raw, 0)
	pipe.Publish(ctx, citizenChannelPrefix+citizen.Code, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewRemoteUnavailable("upsert citizen", err)
	}
	return nil
}

func (r *remoteStore) Search(ctx context.Context, prefix string) ([]*models.Citizen, error) {
	return r.scan(ctx, citizenKeyPrefix+prefix+"*")
}

func (r *remoteStore) List(ctx context.Context) ([]*models.Citizen, error) {
	return r.scan(ctx, citizenKeyPrefix+"*")
}

func (r *remoteStore) scan(ctx context.Context, pattern string) ([]*models.Citizen, error) {
	var citizens []*models.Citizen
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()

	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}

		var citizen models.Citizen
		if err := json.Unmarshal(raw, &citizen); err != nil {
			continue
		}

		citizens = append(citizens, models.Normalize(&citizen))
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.NewRemoteUnavailable("scan citizens", err)
	}

	sort.Slice(citizens, func(i, j int) bool { return citizens[i].Code < citizens[j].Code })
	return citizens, nil
}

func (r *remoteStore) Subscribe(ctx context.Context, code string, fn func(*models.Citizen)) (repository.Unsubscribe, error) {
	pubsub := r.client.Subscribe(ctx, citizenChannelPrefix+code)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, apperrors.NewRemoteUnavailable("subscribe citizen", err)
	}

	sub := repository.NewGuard()
	go func() {
		for msg := range pubsub.Channel() {
			var citizen models.Citizen
			if err := json.Unmarshal([]byte(msg.Payload), &citizen); err != nil {
				logger.Warn().Str("code", code).Err(err).Msg("dropping malformed citizen push")
				continue
			}
			sub.Deliver(func() { fn(models.Normalize(&citizen)) })
		}
	}()

	return func() {
		sub.Stop()
		_ = pubsub.Close()
	}, nil
}

func (r *remoteStore) AppendMailbox(ctx context.Context, msg models.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal message")
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, mailboxKey(msg.Recipient), raw)
	pipe.Publish(ctx, mailboxChannelPrefix+msg.Recipient, "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewRemoteUnavailable("append mailbox", err)
	}
	return nil
}

func (r *remoteStore) FetchMailbox(ctx context.Context, code string) ([]models.Message, error) {
	messages, err := r.readMailbox(ctx, code)
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp > messages[j].Timestamp })
	return messages, nil
}

// readMailbox returns messages in stored (append) order.
func (r *remoteStore) readMailbox(ctx context.Context, code string) ([]models.Message, error) {
	raw, err := r.client.LRange(ctx, mailboxKey(code), 0, -1).Result()
	if err != nil {
		return nil, apperrors.NewRemoteUnavailable("fetch mailbox", err)
	}

	messages := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			logger.Warn().Str("code", code).Err(err).Msg("skipping malformed mailbox entry")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (r *remoteStore) MarkMailboxRead(ctx context.Context, code string) error {
	messages, err := r.readMailbox(ctx, code)
	if err != nil {
		return err
	}

	dirty := false
	for i := range messages {
		if !messages[i].Read {
			messages[i].Read = true
			dirty = true
		}
	}
	if !dirty {
		return nil
	}

	// Rewrite the list in one transaction so the read flags flip as a
	// single batched update.
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, mailboxKey(code))
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal message")
		}
		pipe.RPush(ctx, mailboxKey(code), raw)
	}
	pipe.Publish(ctx, mailboxChannelPrefix+code, "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewRemoteUnavailable("mark mailbox read", err)
	}
	return nil
}

func (r *remoteStore) SubscribeMailbox(ctx context.Context, code string, fn func([]models.Message)) (repository.Unsubscribe, error) {
	pubsub := r.client.Subscribe(ctx, mailboxChannelPrefix+code)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, apperrors.NewRemoteUnavailable("subscribe mailbox", err)
	}

	sub := repository.NewGuard()
	go func() {
		for range pubsub.Channel() {
			messages, err := r.FetchMailbox(context.Background(), code)
			if err != nil {
				logger.Warn().Str("code", code).Err(err).Msg("mailbox refetch failed, push dropped")
				continue
			}
			sub.Deliver(func() { fn(messages) })
		}
	}()

	return func() {
		sub.Stop()
		_ = pubsub.Close()
	}, nil
}
