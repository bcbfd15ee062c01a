// Package settings loads per-user ingestion settings and protects the API
// keys stored with them.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Defaults applied when a user has no stored value.
type Defaults struct {
	BaseCurrency string
	LLMProvider  string
}

// Service reads and writes user settings.
type Service struct {
	repo     store.SettingsRepository
	cipher   *Cipher
	defaults Defaults
	log      zerolog.Logger
}

func NewService(repo store.SettingsRepository, c *Cipher, defaults Defaults, log zerolog.Logger) *Service {
	return &Service{repo: repo, cipher: c, defaults: defaults, log: log}
}

// Get returns the settings of userID with API keys decrypted. A user without
// stored settings gets the defaults. A key that does not decrypt is returned
// as stored.
func (s *Service) Get(ctx context.Context, userID string) (*domain.UserSettings, error) {
	out := &domain.UserSettings{UserID: userID}

	if userID != "" && s.repo != nil {
		stored, err := s.repo.GetSettings(ctx, userID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("Get: loading settings: %w", err)
		default:
			out = stored
		}
	}

	for _, field := range secretFields(out) {
		*field = s.decrypt(*field)
	}
	if out.BaseCurrency == "" {
		out.BaseCurrency = s.defaults.BaseCurrency
	}
	out.BaseCurrency = strings.ToUpper(out.BaseCurrency)
	if out.LLMProvider == "" {
		out.LLMProvider = s.defaults.LLMProvider
	}
	return out, nil
}

// Save encrypts the API keys of in and stores it. in is not modified.
func (s *Service) Save(ctx context.Context, in *domain.UserSettings) error {
	c := *in
	for _, field := range secretFields(&c) {
		if *field == "" || s.cipher == nil {
			continue
		}
		enc, err := s.cipher.Encrypt(*field)
		if err != nil {
			return fmt.Errorf("Save: %w", err)
		}
		*field = enc
	}
	if err := s.repo.SaveSettings(ctx, &c); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func (s *Service) decrypt(v string) string {
	if v == "" || s.cipher == nil {
		return v
	}
	plain, err := s.cipher.Decrypt(v)
	if err != nil {
		s.log.Debug().Err(err).Msg("api key not decryptable, using stored value")
		return v
	}
	return plain
}

func secretFields(s *domain.UserSettings) []*string {
	return []*string{
		&s.AnthropicAPIKey,
		&s.OpenAIAPIKey,
		&s.GeminiAPIKey,
		&s.OCRSpaceAPIKey,
		&s.GoogleVisionAPIKey,
	}
}

// APIKeyFor returns the user's key for an LLM provider.
func APIKeyFor(s *domain.UserSettings, provider string) string {
	switch provider {
	case "anthropic":
		return s.AnthropicAPIKey
	case "openai":
		return s.OpenAIAPIKey
	case "gemini":
		return s.GeminiAPIKey
	}
	return ""
}
