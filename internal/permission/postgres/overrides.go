package postgres

import (
	"context"
	"fmt"
	"time"

	permissionDatamodel "github.com/frahmantamala/assistant-guard/internal/core/datamodel/permission"
	"github.com/frahmantamala/assistant-guard/internal/permission"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OverrideRepository struct {
	db *gorm.DB
}

func NewOverrideRepository(db *gorm.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

func (r *OverrideRepository) Overrides(ctx context.Context, userID string) (permission.Set, permission.Set, error) {
	var rows []permissionDatamodel.Override
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("load overrides: %w", err)
	}

	grants, restrictions := permission.NewSet(), permission.NewSet()
	for _, row := range rows {
		p, err := permission.Parse(row.Permission)
		if err != nil {
			// retired enumeration values are ignored
			continue
		}
		switch permission.OverrideKind(row.Kind) {
		case permission.OverrideGrant:
			grants[p] = struct{}{}
		case permission.OverrideRestrict:
			restrictions[p] = struct{}{}
		}
	}
	return grants, restrictions, nil
}

func (r *OverrideRepository) SetOverride(ctx context.Context, userID string, p permission.Permission, kind permission.OverrideKind, by string) error {
	row := permissionDatamodel.Override{
		UserID:     userID,
		Permission: p.String(),
		Kind:       string(kind),
		GrantedBy:  by,
		UpdatedAt:  time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "granted_by", "updated_at"}),
	}).Create(&row).Error
}

func (r *OverrideRepository) ClearOverrides(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&permissionDatamodel.Override{}).Error
}
