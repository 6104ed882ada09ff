// Package testenv builds throwaway platform dependencies for package tests.
package testenv

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/silktrader/deadpoets/pkg/auth"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/rest"
	"github.com/silktrader/deadpoets/pkg/storage/images"
	"github.com/silktrader/deadpoets/pkg/storage/sqlite"
	"github.com/silktrader/deadpoets/pkg/submissions"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	Secret         = "a-test-secret-that-is-long-enough-for-hs256"
	MainAdminEmail = "keating@welton.edu"
	Password       = "carpe-diem-1989"
)

func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// NewStorage opens a fresh database in a temporary directory, closed when the test ends.
func NewStorage(t *testing.T) *sqlite.Storage {
	t.Helper()
	storage, err := sqlite.New(QuietLogger(), filepath.Join(t.TempDir(), "poets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

// Platform is an engine wired with session routes, ready for domain handlers to be registered.
type Platform struct {
	Storage       *sqlite.Storage
	Engine        *rest.Engine
	Sessions      auth.Sessions
	Authenticator *auth.Authenticator
}

func NewPlatform(t *testing.T) *Platform {
	t.Helper()
	storage := NewStorage(t)

	engine, err := rest.New(rest.Config{Logger: QuietLogger()})
	require.NoError(t, err)

	tokens, err := auth.NewTokens(Secret)
	require.NoError(t, err)

	repository := auth.NewRepository(storage.Connection)
	authenticator := auth.NewAuthenticator(repository, tokens, MainAdminEmail)
	sessions := auth.Sessions{Repository: repository, Tokens: tokens, Authenticator: authenticator, TTL: time.Hour}
	auth.RegisterHandlers(engine, sessions)

	return &Platform{Storage: storage, Engine: engine, Sessions: sessions, Authenticator: authenticator}
}

// Account is a signed up user along with its bearer token.
type Account struct {
	Id    string
	Email string
	Token string
}

// SignUp registers an account; an empty email gets a random one.
func (p *Platform) SignUp(t *testing.T, email string) Account {
	t.Helper()
	if email == "" {
		email = gofakeit.Email()
	}
	var session auth.Session
	response := p.Do(t, http.MethodPost, "/auth/signup", "", auth.CredentialsData{Email: email, Password: Password})
	require.Equal(t, http.StatusCreated, response.Code, response.Body.String())
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &session))
	return Account{Id: session.User.Id, Email: session.User.Email, Token: session.Token}
}

// Named signs up an account and completes its profile with a display name.
func (p *Platform) Named(t *testing.T, email, displayName string) Account {
	t.Helper()
	account := p.SignUp(t, email)
	_, err := p.Storage.Connection.Exec(`UPDATE profiles SET display_name = ? WHERE id = ?`, displayName, account.Id)
	require.NoError(t, err)
	return account
}

// Promote sets an account's stored role directly.
func (p *Platform) Promote(t *testing.T, account Account, role string) {
	t.Helper()
	_, err := p.Storage.Connection.Exec(`UPDATE profiles SET role = ? WHERE id = ?`, role, account.Id)
	require.NoError(t, err)
}

// Do sends a JSON request through the engine; body may be nil.
func (p *Platform) Do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	p.Engine.Handler().ServeHTTP(recorder, request)
	return recorder
}

// Decode unmarshals a recorded JSON response.
func Decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &value), recorder.Body.String())
	return value
}

// Server is the whole platform listening on a loopback address, for client side tests.
type Server struct {
	*Platform
	URL    string
	Notes  *notes.Store
	Broker *realtime.MemoryBroker
}

func NewServer(t *testing.T) *Server {
	t.Helper()
	platform := NewPlatform(t)
	broker := realtime.NewMemoryBroker(QuietLogger())
	bucket, err := images.New(QuietLogger(), t.TempDir(), "http://localhost/storage")
	require.NoError(t, err)

	var connection = platform.Storage.Connection
	notesStore := notes.NewStore(connection)
	profiles.RegisterHandlers(platform.Engine, profiles.Handlers{
		Repository:    profiles.NewRepository(connection),
		Authenticator: platform.Authenticator,
		Bucket:        bucket,
		Publisher:     broker,
	})
	notes.RegisterHandlers(platform.Engine, notesStore, platform.Authenticator)
	submissions.RegisterHandlers(platform.Engine, submissions.NewStore(connection, notesStore), platform.Authenticator)
	realtime.RegisterHandlers(platform.Engine, broker, platform.Authenticator)

	server := httptest.NewServer(platform.Engine.Handler())
	t.Cleanup(server.Close)
	return &Server{Platform: platform, URL: server.URL, Notes: notesStore, Broker: broker}
}

// Publish inserts a note owned by account, bypassing moderation.
func (s *Server) Publish(t *testing.T, owner Account, title string, tags ...string) notes.Note {
	t.Helper()
	note, err := s.Notes.Insert(s.Storage.Connection, notes.NewNote{
		Title:    title,
		Preview:  gofakeit.Sentence(5),
		Content:  gofakeit.Paragraph(1, 4, 8, "\n"),
		Tags:     tags,
		PoetName: gofakeit.Name(),
		UserId:   owner.Id,
	})
	require.NoError(t, err)
	return note
}
