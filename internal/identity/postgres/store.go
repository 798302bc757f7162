package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	identityDatamodel "github.com/frahmantamala/assistant-guard/internal/core/datamodel/identity"
	"github.com/frahmantamala/assistant-guard/internal/identity"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*identity.User, error) {
	var row identityDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return identity.FromDataModel(&row), nil
}

func (r *UserRepository) GetAll(ctx context.Context) ([]*identity.User, error) {
	var rows []*identityDatamodel.User
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*identity.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, identity.FromDataModel(row))
	}
	return out, nil
}

func (r *UserRepository) Put(ctx context.Context, user *identity.User) error {
	err := r.db.WithContext(ctx).Save(identity.ToDataModel(user)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return identity.ErrDuplicate
	}
	return err
}

// isUniqueViolation covers drivers opened without TranslateError.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&identityDatamodel.Activity{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&identityDatamodel.User{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func (r *UserRepository) AppendActivity(ctx context.Context, a identity.Activity) error {
	return r.db.WithContext(ctx).Create(identity.ActivityToDataModel(a)).Error
}

func (r *UserRepository) FindByLogin(ctx context.Context, identifier string) (*identity.User, error) {
	var row identityDatamodel.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", identifier, strings.ToLower(identifier)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return identity.FromDataModel(&row), nil
}

func (r *UserRepository) ListActivity(ctx context.Context, userID string, limit int) ([]identity.Activity, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []identityDatamodel.Activity
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]identity.Activity, 0, len(rows))
	for _, row := range rows {
		out = append(out, identity.ActivityFromDataModel(row))
	}
	return out, nil
}

// TrimActivity keeps the newest keep rows by id.
func (r *UserRepository) TrimActivity(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	var cutoff []int64
	err := r.db.WithContext(ctx).Model(&identityDatamodel.Activity{}).
		Order("id DESC").Offset(keep).Limit(1).
		Pluck("id", &cutoff).Error
	if err != nil || len(cutoff) == 0 {
		return 0, err
	}
	res := r.db.WithContext(ctx).Where("id <= ?", cutoff[0]).Delete(&identityDatamodel.Activity{})
	return int(res.RowsAffected), res.Error
}

func (r *UserRepository) DeleteActivityBefore(ctx context.Context, before time.Time) (int, error) {
	res := r.db.WithContext(ctx).Where("occurred_at < ?", before).Delete(&identityDatamodel.Activity{})
	return int(res.RowsAffected), res.Error
}

func (r *UserRepository) CountActivitySince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&identityDatamodel.Activity{}).Where("occurred_at > ?", since).Count(&n).Error
	return int(n), err
}
