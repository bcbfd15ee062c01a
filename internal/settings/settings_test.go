package settings

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

type mockSettingsRepo struct {
	GetSettingsFunc  func(ctx context.Context, userID string) (*domain.UserSettings, error)
	SaveSettingsFunc func(ctx context.Context, s *domain.UserSettings) error
}

func (m *mockSettingsRepo) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return m.GetSettingsFunc(ctx, userID)
}

func (m *mockSettingsRepo) SaveSettings(ctx context.Context, s *domain.UserSettings) error {
	return m.SaveSettingsFunc(ctx, s)
}

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestCipherRoundTripFormat(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	secret, err := c.Encrypt("sk-ant-123")
	require.NoError(t, err)
	parts := strings.Split(secret, ".")
	require.Len(t, parts, 3)
	nonce, _ := base64.StdEncoding.DecodeString(parts[0])
	tag, _ := base64.StdEncoding.DecodeString(parts[1])
	assert.Len(t, nonce, 12)
	assert.Len(t, tag, 16)

	plain, err := c.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-123", plain)

	other, _ := c.Encrypt("sk-ant-123")
	assert.NotEqual(t, secret, other)
}

func TestCipherRejects(t *testing.T) {
	c, err := NewCipher(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt("plain-key")
	assert.ErrorIs(t, err, ErrInvalidSecret)

	secret, _ := c.Encrypt("x")
	parts := strings.Split(secret, ".")
	parts[1] = base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err = c.Decrypt(strings.Join(parts, "."))
	assert.Error(t, err)

	_, err = NewCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	none, err := NewCipher("")
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = none.Encrypt("x")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestServiceGetDecryptsAndFallsBack(t *testing.T) {
	c, _ := NewCipher(testKey)
	enc, _ := c.Encrypt("sk-real")

	repo := &mockSettingsRepo{GetSettingsFunc: func(context.Context, string) (*domain.UserSettings, error) {
		return &domain.UserSettings{UserID: "u1", AnthropicAPIKey: enc, OpenAIAPIKey: "legacy-plain", BaseCurrency: "eur"}, nil
	}}
	svc := NewService(repo, c, Defaults{BaseCurrency: "ILS", LLMProvider: "anthropic"}, zerolog.Nop())

	s, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "sk-real", s.AnthropicAPIKey)
	assert.Equal(t, "legacy-plain", s.OpenAIAPIKey)
	assert.Equal(t, "EUR", s.BaseCurrency)
	assert.Equal(t, "anthropic", s.LLMProvider)
	assert.Equal(t, "sk-real", APIKeyFor(s, "anthropic"))
	assert.Empty(t, APIKeyFor(s, "local"))
}

func TestServiceGetDefaults(t *testing.T) {
	repo := &mockSettingsRepo{GetSettingsFunc: func(context.Context, string) (*domain.UserSettings, error) {
		return nil, store.ErrNotFound
	}}
	svc := NewService(repo, nil, Defaults{BaseCurrency: "ILS", LLMProvider: "gemini"}, zerolog.Nop())

	s, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ILS", s.BaseCurrency)
	assert.Equal(t, "gemini", s.LLMProvider)

	s, err = svc.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ILS", s.BaseCurrency)

	repo.GetSettingsFunc = func(context.Context, string) (*domain.UserSettings, error) { return nil, errors.New("timeout") }
	_, err = svc.Get(context.Background(), "u1")
	assert.Error(t, err)
}

func TestServiceSaveEncrypts(t *testing.T) {
	c, _ := NewCipher(testKey)
	var saved *domain.UserSettings
	repo := &mockSettingsRepo{SaveSettingsFunc: func(_ context.Context, s *domain.UserSettings) error {
		saved = s
		return nil
	}}
	svc := NewService(repo, c, Defaults{}, zerolog.Nop())

	in := &domain.UserSettings{UserID: "u1", GeminiAPIKey: "g-key"}
	require.NoError(t, svc.Save(context.Background(), in))

	assert.Equal(t, "g-key", in.GeminiAPIKey)
	assert.NotEqual(t, "g-key", saved.GeminiAPIKey)
	assert.Empty(t, saved.AnthropicAPIKey)
	plain, err := c.Decrypt(saved.GeminiAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "g-key", plain)
}
