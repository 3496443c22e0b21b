package customize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/kberr"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Resolver loads organization settings and merges them over platform
// defaults. Resolutions are cached per organization for a short TTL; updates
// invalidate the entry so fresh settings apply on the next query.
type Resolver struct {
	db       *gorm.DB
	defaults config.AnswerDefaults
	ttl      time.Duration
	log      *zap.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedConfig
}

type cachedConfig struct {
	cfg     EffectiveConfig
	expires time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB, defaults config.AnswerDefaults, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		db:       db,
		defaults: defaults,
		ttl:      ttl,
		log:      logger,
		cache:    make(map[uuid.UUID]cachedConfig),
	}
}

// PlatformDefaults returns the effective configuration for users in personal
// mode.
func (r *Resolver) PlatformDefaults() EffectiveConfig {
	d := r.defaults
	return EffectiveConfig{
		SystemPrompt:     d.SystemPrompt,
		Model:            d.Model,
		Temperature:      d.Temperature,
		MaxTokens:        d.MaxTokens,
		PrimaryLanguage:  d.PrimaryLanguage,
		CitationFormat:   d.CitationFormat,
		ResponseFormat:   d.ResponseFormat,
		ShowConfidence:   d.ShowConfidence,
		NoResultsMessage: d.NoResultsMessage,
	}
}

// Resolve produces the effective configuration for the given organization,
// or platform defaults when orgID is nil. Pure read, no side effects beyond
// the cache.
func (r *Resolver) Resolve(ctx context.Context, orgID *uuid.UUID) (EffectiveConfig, error) {
	if orgID == nil {
		return r.PlatformDefaults(), nil
	}

	r.mu.RLock()
	entry, ok := r.cache[*orgID]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.cfg, nil
	}

	var row Settings
	err := r.db.WithContext(ctx).First(&row, "organization_id = ?", *orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// organizations created before settings provisioning existed
		cfg := r.PlatformDefaults()
		r.put(*orgID, cfg)
		return cfg, nil
	}
	if err != nil {
		return EffectiveConfig{}, fmt.Errorf("loading organization settings: %w", err)
	}

	cfg := r.overlay(&row)
	r.put(*orgID, cfg)
	return cfg, nil
}

func (r *Resolver) put(orgID uuid.UUID, cfg EffectiveConfig) {
	r.mu.Lock()
	r.cache[orgID] = cachedConfig{cfg: cfg, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()
}

// overlay applies the non-nil settings fields over platform defaults.
func (r *Resolver) overlay(s *Settings) EffectiveConfig {
	cfg := r.PlatformDefaults()
	if s.SystemPrompt != nil {
		cfg.SystemPrompt = *s.SystemPrompt
	}
	if s.Model != nil {
		cfg.Model = *s.Model
	}
	if s.Temperature != nil {
		cfg.Temperature = clampTemperature(*s.Temperature)
	}
	if s.MaxTokens != nil && *s.MaxTokens > 0 {
		cfg.MaxTokens = *s.MaxTokens
	}
	if s.PrimaryLanguage != nil {
		cfg.PrimaryLanguage = *s.PrimaryLanguage
	}
	if len(s.Terminology) > 0 {
		cfg.Terminology = s.Terminology
	}
	if s.CitationFormat != nil {
		cfg.CitationFormat = *s.CitationFormat
	}
	if s.ResponseFormat != nil {
		cfg.ResponseFormat = *s.ResponseFormat
	}
	if s.PrePromptInstructions != nil {
		cfg.PrePromptInstructions = *s.PrePromptInstructions
	}
	if s.PostPromptInstructions != nil {
		cfg.PostPromptInstructions = *s.PostPromptInstructions
	}
	if s.ShowConfidence != nil {
		cfg.ShowConfidence = *s.ShowConfidence
	}
	if s.NoResultsMessage != nil {
		cfg.NoResultsMessage = *s.NoResultsMessage
	}
	return cfg
}

func clampTemperature(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t > 2:
		return 2
	default:
		return t
	}
}

// ProvisionDefaults creates the empty settings row for a new organization
// inside the caller's transaction. Implements tenant.SettingsProvisioner.
func (r *Resolver) ProvisionDefaults(tx *gorm.DB, orgID uuid.UUID) error {
	row := Settings{OrganizationID: orgID}
	if err := tx.Where(Settings{OrganizationID: orgID}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("provisioning settings: %w", err)
	}
	return nil
}

// GetSettings returns the raw settings row for the actor's organization.
func (r *Resolver) GetSettings(ctx context.Context, actor tenant.Context) (*Settings, error) {
	if !actor.InOrganization() {
		return nil, fmt.Errorf("no organization settings in personal mode: %w", kberr.ErrNotFound)
	}
	var row Settings
	err := r.db.WithContext(ctx).First(&row, "organization_id = ?", *actor.OrganizationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("settings for organization %s: %w", actor.OrganizationID, kberr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &row, nil
}

// Update is a partial settings change; nil fields are left untouched and an
// explicit empty value resets a field to the platform default.
type Update struct {
	SystemPrompt           *string           `json:"system_prompt,omitempty"`
	Model                  *string           `json:"model,omitempty"`
	Temperature            *float64          `json:"temperature,omitempty"`
	MaxTokens              *int              `json:"max_tokens,omitempty"`
	PrimaryLanguage        *string           `json:"primary_language,omitempty"`
	Terminology            map[string]string `json:"terminology,omitempty"`
	CitationFormat         *string           `json:"citation_format,omitempty"`
	ResponseFormat         *string           `json:"response_format,omitempty"`
	PrePromptInstructions  *string           `json:"pre_prompt_instructions,omitempty"`
	PostPromptInstructions *string           `json:"post_prompt_instructions,omitempty"`
	ShowConfidence         *bool             `json:"show_confidence,omitempty"`
	NoResultsMessage       *string           `json:"no_results_message,omitempty"`
}

// UpdateSettings applies a partial update to the actor's organization
// settings. Owner or admin only. Temperature is clamped to [0,2].
func (r *Resolver) UpdateSettings(ctx context.Context, actor tenant.Context, upd Update) (*Settings, error) {
	if !actor.CanEditSettings() {
		return nil, fmt.Errorf("editing settings requires an admin or owner role: %w", kberr.ErrPermissionDenied)
	}
	orgID := *actor.OrganizationID

	var row Settings
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(Settings{OrganizationID: orgID}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		applyUpdate(&row, upd)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	delete(r.cache, orgID)
	r.mu.Unlock()

	r.log.Info("organization settings updated",
		zap.String("org_id", orgID.String()),
		zap.String("actor_id", actor.UserID.String()))
	return &row, nil
}

func applyUpdate(row *Settings, upd Update) {
	if upd.SystemPrompt != nil {
		row.SystemPrompt = orNil(*upd.SystemPrompt)
	}
	if upd.Model != nil {
		row.Model = orNil(*upd.Model)
	}
	if upd.Temperature != nil {
		t := clampTemperature(*upd.Temperature)
		row.Temperature = &t
	}
	if upd.MaxTokens != nil {
		if *upd.MaxTokens > 0 {
			row.MaxTokens = upd.MaxTokens
		} else {
			row.MaxTokens = nil
		}
	}
	if upd.PrimaryLanguage != nil {
		row.PrimaryLanguage = orNil(*upd.PrimaryLanguage)
	}
	if upd.Terminology != nil {
		row.Terminology = upd.Terminology
	}
	if upd.CitationFormat != nil {
		row.CitationFormat = orNil(*upd.CitationFormat)
	}
	if upd.ResponseFormat != nil {
		row.ResponseFormat = orNil(*upd.ResponseFormat)
	}
	if upd.PrePromptInstructions != nil {
		row.PrePromptInstructions = orNil(*upd.PrePromptInstructions)
	}
	if upd.PostPromptInstructions != nil {
		row.PostPromptInstructions = orNil(*upd.PostPromptInstructions)
	}
	if upd.ShowConfidence != nil {
		row.ShowConfidence = upd.ShowConfidence
	}
	if upd.NoResultsMessage != nil {
		row.NoResultsMessage = orNil(*upd.NoResultsMessage)
	}
}

// orNil maps an empty string to nil, resetting the override.
func orNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DeleteSettingsIn removes the settings row, part of the organization
// deletion cascade.
func (r *Resolver) DeleteSettingsIn(tx *gorm.DB, orgID uuid.UUID) error {
	r.mu.Lock()
	delete(r.cache, orgID)
	r.mu.Unlock()
	return tx.Where("organization_id = ?", orgID).Delete(&Settings{}).Error
}
