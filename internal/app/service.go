package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"scribe/api/internal/auth"
	"scribe/api/internal/authpw"
	"scribe/api/internal/blob"
	"scribe/api/internal/events"
	"scribe/api/internal/logging"
	"scribe/api/internal/search"
	"scribe/api/internal/session"
	"scribe/api/internal/store"
	"scribe/api/internal/util"
)

// noteIndex is satisfied by *search.Service.
type noteIndex interface {
	Candidates(ctx context.Context, userID, text string) ([]string, bool)
	IndexNote(record search.NoteRecord)
	DeleteNote(id string)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Notes       store.NoteStore
	Memberships store.MembershipStore
	Users       store.UserStore
	// Optional. Nil disables indexed search, activity events and attachments respectively.
	Indexer     noteIndex
	Events      events.Publisher
	Attachments blob.Store
	Sessions    session.Store
	Health      pinger
	Logger      zerolog.Logger

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

type Service struct {
	notes       store.NoteStore
	memberships store.MembershipStore
	users       store.UserStore
	indexer     noteIndex
	events      events.Publisher
	attachments blob.Store
	sessions    session.Store
	health      pinger
	passwords   *authpw.Service
	log         zerolog.Logger

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func New(deps Deps) *Service {
	s := &Service{
		notes:       deps.Notes,
		memberships: deps.Memberships,
		users:       deps.Users,
		indexer:     deps.Indexer,
		events:      deps.Events,
		attachments: deps.Attachments,
		sessions:    deps.Sessions,
		health:      deps.Health,
		log:         logging.Component(deps.Logger, "engine"),
		jwtSecret:   []byte(deps.JWTSecret),
		accessTTL:   deps.AccessTTL,
		refreshTTL:  deps.RefreshTTL,
		now:         deps.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.accessTTL <= 0 {
		s.accessTTL = 15 * time.Minute
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 30 * 24 * time.Hour
	}
	if s.users != nil {
		s.passwords = authpw.NewService(s.users)
	}
	return s
}

// WithPasswordService swaps the password service, e.g. for a cheaper bcrypt cost.
func (s *Service) WithPasswordService(passwords *authpw.Service) *Service {
	s.passwords = passwords
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	return s.health.Ping(ctx)
}

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrInvalidInput):
			return Session{}, validation(err.Error(), nil)
		case errors.Is(err, authpw.ErrEmailTaken):
			return Session{}, conflict("Email already registered")
		default:
			return Session{}, persistence("register", err)
		}
	}
	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrInvalidInput):
			return Session{}, validation(err.Error(), nil)
		case errors.Is(err, authpw.ErrInvalidCredentials):
			return Session{}, domainError(KindUnauthenticated, "Invalid email or password", nil)
		default:
			return Session{}, persistence("login", err)
		}
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, unauthenticated()
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, session.ErrSessionNotFound) {
		return Session{}, unauthenticated()
	}
	if err != nil {
		return Session{}, persistence("lookup refresh session", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, persistence("revoke refresh session", err)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, unauthenticated()
	}
	if err != nil {
		return Session{}, persistence("get user", err)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	claims := auth.NewClaims(user.ID, user.Name, s.accessTTL, now)
	token, err := auth.IssueToken(s.jwtSecret, claims)
	if err != nil {
		return Session{}, persistence("issue token", err)
	}

	refresh := auth.NewRefreshToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.refreshTTL)); err != nil {
		return Session{}, persistence("save refresh session", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Authenticate resolves a bearer access token to the caller. Every failure
// is reported as Unauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, unauthenticated()
	}
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, unauthenticated()
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, persistence("check revoked token", err)
	}
	if revoked {
		return Session{}, unauthenticated()
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, current Session, refreshToken string) error {
	if current.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, current.JTI, current.ExpiresAt); err != nil {
			s.log.Warn().Err(err).Msg("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Warn().Err(err).Msg("revoke refresh session")
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType events.Type, noteID, actorID, targetID string) {
	event := events.Event{
		Type:      eventType,
		NoteID:    noteID,
		ActorID:   actorID,
		TargetID:  targetID,
		Timestamp: s.now(),
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn().Err(err).Str("event", string(eventType)).Str("note_id", noteID).Msg("publish note activity")
	}
}

// reindex pushes the note and its current member list to the search index.
func (s *Service) reindex(ctx context.Context, note store.Note) {
	if s.indexer == nil {
		return
	}
	rows, err := s.memberships.ListMembershipsByNote(ctx, note.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("note_id", note.ID).Msg("load members for index")
		return
	}
	memberIDs := make([]string, 0, len(rows))
	for _, m := range rows {
		memberIDs = append(memberIDs, m.UserID)
	}
	s.indexer.IndexNote(search.NoteRecord{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		MemberIDs: memberIDs,
	})
}

func newID() string {
	return util.NewID("")
}
