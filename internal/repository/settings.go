package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

var defaultSettings = json.RawMessage(`{
	"fiscal": {
		"checkboxEnabled": true,
		"taxRate": 20,
		"companyName": "ТОВ \"Ювелірний світ\"",
		"companyAddress": "м. Київ, вул. Хрещатик, 1",
		"taxNumber": "12345678"
	},
	"currency": {
		"baseCurrency": "UAH",
		"exchangeRates": {"USD": 37.5, "EUR": 40.2},
		"autoUpdateRates": true
	},
	"printing": {
		"receiptPrinter": "Epson TM-T20II",
		"labelPrinter": "Zebra ZD220",
		"autoprint": true
	}
}`)

// GetSettings returns the stored settings blob, or the defaults when none
// were saved yet.
func (r *Repository) GetSettings(ctx context.Context) (domain.Settings, error) {
	raw, err := r.kv.Get(ctx, store.KeySettings)
	if errors.Is(err, store.ErrNotFound) {
		return slices.Clone(defaultSettings), nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// PutSettings replaces the settings blob. It must be a JSON object.
func (r *Repository) PutSettings(ctx context.Context, settings domain.Settings) error {
	var parsed map[string]any
	if err := json.Unmarshal(settings, &parsed); err != nil || parsed == nil {
		return fmt.Errorf("%w: settings must be a JSON object", store.ErrInvalid)
	}
	return r.kv.Set(ctx, store.KeySettings, settings)
}

func userKey(email string) string {
	return store.PrefixUser + strings.ToLower(strings.TrimSpace(email))
}

func (r *Repository) CreateUser(ctx context.Context, user domain.UserAccount) error {
	return r.create(ctx, userKey(user.Email), user)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	u, err := getJSON[domain.UserAccount](ctx, r.kv, userKey(email))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return listJSON[domain.UserAccount](ctx, r.kv, store.PrefixUser)
}

func (r *Repository) UpdateUserPassword(ctx context.Context, email string, passwordHash string) error {
	_, err := modify(ctx, r.kv, userKey(email), func(u *domain.UserAccount) error {
		u.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (r *Repository) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return putJSON(ctx, r.kv, auditKey(entry.ID), entry)
}

// ListAuditLogs returns the newest entries first, at most limit of them.
func (r *Repository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	logs, err := listJSON[domain.AuditLog](ctx, r.kv, store.PrefixAudit)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
