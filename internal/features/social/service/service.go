package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

// Overview is the outward friend-graph shape for one citizen.
type Overview struct {
	Friends  []string `json:"friends"`
	Incoming []string `json:"incomingRequests"`
}

// SocialService owns the friend-request lifecycle
// (NONE -> PENDING -> FRIENDS | NONE) and mailbox delivery.
type SocialService interface {
	// SendFriendRequest appends fromCode to the target's pending
	// requests. The target's current state is re-checked immediately
	// before mutating, so duplicates and already-friends are rejected no
	// matter what the caller believed.
	SendFriendRequest(ctx context.Context, fromCode, toCode string) error

	// RespondToFriendRequest removes the pending request
	// unconditionally; decline is terminal. On accept both friends lists
	// are written; when the second write fails the asymmetry is logged
	// and surfaced as PARTIAL_GRAPH_WRITE.
	RespondToFriendRequest(ctx context.Context, ownCode, fromCode string, accept bool) error

	FriendsOverview(ctx context.Context, code string) (*Overview, error)

	SendMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error)

	Mailbox(ctx context.Context, code string) ([]models.Message, error)

	// MarkMessagesRead flips every unread message to read in one batched
	// call. Read state only ever moves false -> true.
	MarkMessagesRead(ctx context.Context, code string) error
}

type socialService struct {
	remote repository.RemoteStore
	cache  cache.Store
}

func NewSocialService(remote repository.RemoteStore, localCache cache.Store) SocialService {
	return &socialService{remote: remote, cache: localCache}
}

func (s *socialService) SendFriendRequest(ctx context.Context, fromCode, toCode string) error {
	if fromCode == "" || toCode == "" || fromCode == toCode {
		return apperrors.New(apperrors.ErrCodeValidation, "invalid friend request codes")
	}

	target, err := s.remote.FetchByCode(ctx, toCode)
	if err != nil {
		return asSocialError(err, toCode)
	}

	if contains(target.Friends, fromCode) {
		return apperrors.New(apperrors.ErrCodeAlreadyFriends, "already connected")
	}
	if contains(target.FriendRequests, fromCode) {
		return apperrors.New(apperrors.ErrCodeAlreadyPending, "request already pending")
	}

	target.FriendRequests = append(target.FriendRequests, fromCode)
	if err := s.remote.Upsert(ctx, target); err != nil {
		return asSocialError(err, toCode)
	}

	logger.Info().Str("from", fromCode).Str("to", toCode).Msg("friend request sent")
	return nil
}

func (s *socialService) RespondToFriendRequest(ctx context.Context, ownCode, fromCode string, accept bool) error {
	own, err := s.remote.FetchByCode(ctx, ownCode)
	if err != nil {
		return asSocialError(err, ownCode)
	}

	// The pending entry is removed even on decline: decline is terminal,
	// not resumable.
	own.FriendRequests = remove(own.FriendRequests, fromCode)
	if accept && !contains(own.Friends, fromCode) {
		own.Friends = append(own.Friends, fromCode)
	}

	if err := s.remote.Upsert(ctx, own); err != nil {
		return asSocialError(err, ownCode)
	}
	s.mirror(ctx, own)

	if !accept {
		logger.Info().Str("own", ownCode).Str("from", fromCode).Msg("friend request declined")
		return nil
	}

	// Second half of the bidirectional write. No two-record transaction
	// is available, so a failure here leaves a detectably asymmetric
	// graph that must not be swallowed.
	other, err := s.remote.FetchByCode(ctx, fromCode)
	if err != nil {
		return s.partialWrite(ownCode, fromCode, err)
	}
	if !contains(other.Friends, ownCode) {
		other.Friends = append(other.Friends, ownCode)
		if err := s.remote.Upsert(ctx, other); err != nil {
			return s.partialWrite(ownCode, fromCode, err)
		}
	}

	logger.Info().Str("own", ownCode).Str("from", fromCode).Msg("friend request accepted")
	return nil
}

func (s *socialService) partialWrite(ownCode, fromCode string, cause error) error {
	err := apperrors.NewPartialGraphWrite(ownCode, fromCode, cause)
	logger.Error().
		Str("own", ownCode).
		Str("other", fromCode).
		Err(cause).
		Msg("friendship accepted on one side only, graph is asymmetric")
	return err
}

func (s *socialService) FriendsOverview(ctx context.Context, code string) (*Overview, error) {
	citizen, err := s.remote.FetchByCode(ctx, code)
	if err != nil {
		return nil, asSocialError(err, code)
	}
	return &Overview{
		Friends:  citizen.Friends,
		Incoming: citizen.FriendRequests,
	}, nil
}

func (s *socialService) SendMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error) {
	if text == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "message text is required")
	}

	if _, err := s.remote.FetchByCode(ctx, recipient); err != nil {
		return nil, asSocialError(err, recipient)
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		Read:      false,
	}
	if err := s.remote.AppendMailbox(ctx, msg); err != nil {
		return nil, asSocialError(err, recipient)
	}
	return &msg, nil
}

func (s *socialService) Mailbox(ctx context.Context, code string) ([]models.Message, error) {
	messages, err := s.remote.FetchMailbox(ctx, code)
	if err != nil {
		return nil, asSocialError(err, code)
	}
	return messages, nil
}

func (s *socialService) MarkMessagesRead(ctx context.Context, code string) error {
	if err := s.remote.MarkMailboxRead(ctx, code); err != nil {
		return asSocialError(err, code)
	}
	return nil
}

// mirror writes the caller's own mutated record through to the local cache.
func (s *socialService) mirror(ctx context.Context, citizen *models.Citizen) {
	if err := s.cache.Put(ctx, citizen); err != nil {
		logger.Warn().Str("code", citizen.Code).Err(err).Msg("cache mirror write failed")
	}
}

// asSocialError reshapes adapter outcomes for the social layer: a confirmed
// absence is the target's, and an unreachable remote has no local fallback
// here so it escalates.
func asSocialError(err error, code string) error {
	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound):
		return apperrors.NewTargetNotFound(code)
	case apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable):
		return apperrors.NewServiceUnavailable("social graph", err)
	default:
		return err
	}
}

func contains(list []string, code string) bool {
	for _, item := range list {
		if item == code {
			return true
		}
	}
	return false
}

func remove(list []string, code string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != code {
			out = append(out, item)
		}
	}
	return out
}
