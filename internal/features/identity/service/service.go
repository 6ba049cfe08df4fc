package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"

	"golang.org/x/crypto/bcrypt"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

// SyncStatus reports whether an operation reached the authoritative store
// or only the local cache. Degraded operation is an explicit, observable
// mode, never a hidden side effect.
type SyncStatus string

const (
	StatusSynced    SyncStatus = "synced"
	StatusLocalOnly SyncStatus = "local-only"
)

const codeMintAttempts = 10

type RegisterResult struct {
	Code    string
	Citizen *models.Citizen
	Status  SyncStatus
}

type AuthResult struct {
	Citizen *models.Citizen
	Status  SyncStatus
}

type IdentityService interface {
	// Register mints a unique citizen code, hashes the secret and stores
	// the record. When the remote store is unreachable the account is
	// created in the local cache only and the result says so.
	Register(ctx context.Context, profile *models.Citizen, secret string) (*RegisterResult, error)

	// Login authenticates against the remote store first, falling back to
	// the local cache when the remote is unreachable.
	Login(ctx context.Context, code, secret string) (*AuthResult, error)

	// RestoreSession silently re-authenticates from the stored session
	// pointer. Returns (nil, nil) when there is no restorable session;
	// a confirmed absence or secret mismatch clears the pointer.
	RestoreSession(ctx context.Context) (*AuthResult, error)

	// Logout clears the session pointer. No record is deleted.
	Logout(ctx context.Context) error

	// UpdateProfile attempts the remote upsert and always writes the
	// local cache, so the cache holds the latest intent even when the
	// remote write failed.
	UpdateProfile(ctx context.Context, citizen *models.Citizen) (SyncStatus, error)

	// ResolveHandle maps a display handle to a citizen code.
	ResolveHandle(ctx context.Context, handle string) (string, error)

	// SessionCredentials exposes the stored session pointer, used to mint
	// a passport for the active session.
	SessionCredentials(ctx context.Context) (code, secret string, ok bool, err error)

	// AllowPush reports whether a push for code may be applied right now.
	// It is false while an upsert for that code is still awaiting its
	// remote acknowledgment, so a stale push cannot overwrite an
	// in-flight local write.
	AllowPush(code string) bool
}

type identityService struct {
	remote repository.RemoteStore
	cache  cache.Store

	mu       sync.Mutex
	inFlight map[string]int
}

func NewIdentityService(remote repository.RemoteStore, localCache cache.Store) IdentityService {
	return &identityService{
		remote:   remote,
		cache:    localCache,
		inFlight: make(map[string]int),
	}
}

func (s *identityService) Register(ctx context.Context, profile *models.Citizen, secret string) (*RegisterResult, error) {
	if secret == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "access phrase is required")
	}
	if profile == nil {
		profile = &models.Citizen{}
	}

	// Handle uniqueness is checked before any code is minted so a taken
	// handle fails fast.
	if profile.Handle != "" {
		_, err := s.remote.FetchByHandle(ctx, profile.Handle)
		switch {
		case err == nil:
			return nil, apperrors.NewHandleTaken(profile.Handle)
		case apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable):
			return s.registerLocalOnly(ctx, profile, secret)
		case apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound):
			// Handle is free.
		default:
			return nil, err
		}
	}

	code, err := s.mintRemoteCode(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable) {
			return s.registerLocalOnly(ctx, profile, secret)
		}
		return nil, err
	}

	citizen, err := buildCitizen(profile, code, secret)
	if err != nil {
		return nil, err
	}

	if err := s.upsertFenced(ctx, citizen); err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable) {
			return s.registerLocalOnly(ctx, profile, secret)
		}
		return nil, err
	}

	s.mirror(ctx, citizen)
	if err := s.cache.SetSessionPointer(ctx, code, secret); err != nil {
		logger.Warn().Str("code", code).Err(err).Msg("session pointer write failed")
	}

	logger.Info().Str("code", code).Msg("citizen registered")
	return &RegisterResult{Code: code, Citizen: citizen, Status: StatusSynced}, nil
}

// registerLocalOnly creates the account purely in the local cache. The
// caller is told the account is device-local and not yet cross-device
// capable.
func (s *identityService) registerLocalOnly(ctx context.Context, profile *models.Citizen, secret string) (*RegisterResult, error) {
	code, err := s.mintLocalCode(ctx)
	if err != nil {
		return nil, err
	}

	citizen, err := buildCitizen(profile, code, secret)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, citizen); err != nil {
		return nil, apperrors.NewServiceUnavailable("register", err)
	}
	if err := s.cache.SetSessionPointer(ctx, code, secret); err != nil {
		logger.Warn().Str("code", code).Err(err).Msg("session pointer write failed")
	}

	logger.Warn().Str("code", code).Msg("citizen registered locally only, remote unreachable")
	return &RegisterResult{Code: code, Citizen: citizen, Status: StatusLocalOnly}, nil
}

func (s *identityService) Login(ctx context.Context, code, secret string) (*AuthResult, error) {
	citizen, err := s.remote.FetchByCode(ctx, code)
	switch {
	case err == nil:
		if !verifySecret(citizen.SecretHash, secret) {
			return nil, apperrors.NewBadCredentials()
		}
		s.mirror(ctx, citizen)
		if err := s.cache.SetSessionPointer(ctx, code, secret); err != nil {
			logger.Warn().Str("code", code).Err(err).Msg("session pointer write failed")
		}
		return &AuthResult{Citizen: citizen, Status: StatusSynced}, nil

	case apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound):
		// Confirmed absence is terminal, no fallback.
		return nil, err

	case apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable):
		return s.loginLocal(ctx, code, secret, err)

	default:
		return nil, err
	}
}

func (s *identityService) loginLocal(ctx context.Context, code, secret string, remoteErr error) (*AuthResult, error) {
	citizen, ok, err := s.cache.Get(ctx, code)
	if err != nil {
		return nil, apperrors.NewServiceUnavailable("login", err)
	}
	if !ok {
		// Not a confirmed absence: the remote might still hold the
		// record, the cache just never saw it.
		return nil, apperrors.NewServiceUnavailable("login", remoteErr)
	}
	if !verifySecret(citizen.SecretHash, secret) {
		return nil, apperrors.NewBadCredentials()
	}

	if err := s.cache.SetSessionPointer(ctx, code, secret); err != nil {
		logger.Warn().Str("code", code).Err(err).Msg("session pointer write failed")
	}

	logger.Warn().Str("code", code).Msg("remote unreachable, served login from local cache")
	return &AuthResult{Citizen: citizen, Status: StatusLocalOnly}, nil
}

func (s *identityService) RestoreSession(ctx context.Context) (*AuthResult, error) {
	code, secret, ok, err := s.cache.SessionPointer(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	result, err := s.Login(ctx, code, secret)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound) ||
			apperrors.HasCode(err, apperrors.ErrCodeBadCredentials) {
			// The pointer no longer restores a valid session.
			if clearErr := s.cache.ClearSessionPointer(ctx); clearErr != nil {
				logger.Warn().Err(clearErr).Msg("session pointer clear failed")
			}
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

func (s *identityService) Logout(ctx context.Context) error {
	return s.cache.ClearSessionPointer(ctx)
}

func (s *identityService) UpdateProfile(ctx context.Context, citizen *models.Citizen) (SyncStatus, error) {
	if citizen == nil || citizen.Code == "" {
		return "", apperrors.New(apperrors.ErrCodeValidation, "citizen code is required")
	}
	models.Normalize(citizen)

	// UI payloads never carry the secret hash; keep the stored one so a
	// profile update cannot erase the credentials.
	if citizen.SecretHash == "" {
		if cached, ok, err := s.cache.Get(ctx, citizen.Code); err == nil && ok {
			citizen.SecretHash = cached.SecretHash
		}
	}

	remoteErr := s.upsertFenced(ctx, citizen)

	// The cache must hold the latest intent regardless of the remote
	// outcome.
	if err := s.cache.Put(ctx, citizen); err != nil {
		logger.Error().Str("code", citizen.Code).Err(err).Msg("cache write failed on profile update")
	}

	if remoteErr != nil {
		if apperrors.HasCode(remoteErr, apperrors.ErrCodeRemoteUnavailable) {
			logger.Warn().Str("code", citizen.Code).Msg("profile held locally, remote unreachable")
			return StatusLocalOnly, nil
		}
		return StatusLocalOnly, remoteErr
	}
	return StatusSynced, nil
}

func (s *identityService) ResolveHandle(ctx context.Context, handle string) (string, error) {
	return s.remote.FetchByHandle(ctx, handle)
}

func (s *identityService) SessionCredentials(ctx context.Context) (string, string, bool, error) {
	return s.cache.SessionPointer(ctx)
}

func (s *identityService) AllowPush(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[code] == 0
}

// upsertFenced wraps a remote upsert with the in-flight fence consulted by
// AllowPush. Last-writer-wins follows upsert-ack order, not push-arrival
// order.
func (s *identityService) upsertFenced(ctx context.Context, citizen *models.Citizen) error {
	s.mu.Lock()
	s.inFlight[citizen.Code]++
	s.mu.Unlock()

	err := s.remote.Upsert(ctx, citizen)

	s.mu.Lock()
	s.inFlight[citizen.Code]--
	if s.inFlight[citizen.Code] <= 0 {
		delete(s.inFlight, citizen.Code)
	}
	s.mu.Unlock()
	return err
}

// mirror writes a successful remote read or write through to the cache.
func (s *identityService) mirror(ctx context.Context, citizen *models.Citizen) {
	if err := s.cache.Put(ctx, citizen); err != nil {
		logger.Warn().Str("code", citizen.Code).Err(err).Msg("cache mirror write failed")
	}
}

// mintRemoteCode rolls 6-digit codes until one is free on the remote
// store. Collision re-rolls, never overwrites.
func (s *identityService) mintRemoteCode(ctx context.Context) (string, error) {
	for i := 0; i < codeMintAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "mint citizen code")
		}

		_, err = s.remote.FetchByCode(ctx, code)
		if apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		// Collision, re-roll.
	}
	return "", apperrors.New(apperrors.ErrCodeInternal, "could not mint a unique citizen code")
}

func (s *identityService) mintLocalCode(ctx context.Context) (string, error) {
	for i := 0; i < codeMintAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "mint citizen code")
		}
		if _, ok, err := s.cache.Get(ctx, code); err == nil && !ok {
			return code, nil
		}
	}
	return "", apperrors.New(apperrors.ErrCodeInternal, "could not mint a unique citizen code")
}

func buildCitizen(profile *models.Citizen, code, secret string) (*models.Citizen, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "hash access phrase")
	}

	citizen := profile.Clone()
	if citizen == nil {
		citizen = models.Normalize(&models.Citizen{})
	}
	citizen.Code = code
	citizen.SecretHash = string(hash)
	return citizen, nil
}

func verifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return big.NewInt(0).Add(n, big.NewInt(100000)).String(), nil
}
