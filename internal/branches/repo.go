package branches

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Repository handles branch persistence.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) Create(ctx context.Context, branch *models.Branch) error {
	if branch == nil {
		return fmt.Errorf("branch is required")
	}
	return r.DB(ctx).Create(branch).Error
}

// FindByID loads a branch, returning gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	var branch models.Branch
	if err := r.DB(ctx).Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

// List returns one page of branches and the total matching the search.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Branch, int64, error) {
	query := r.DB(ctx).Model(&models.Branch{})
	if q.search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(q.search)) + "%"
		query = query.Where(
			`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(address) LIKE ? ESCAPE '\' OR LOWER(COALESCE(contact, '')) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Branch
	err := query.
		Order(fmt.Sprintf("%s %s", q.sortColumn, q.sortDir)).
		Order("id ASC").
		Limit(q.limit).
		Offset(q.offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Update writes the editable columns of branch.
func (r *Repository) Update(ctx context.Context, branch *models.Branch) error {
	if branch == nil {
		return fmt.Errorf("branch is required")
	}
	return r.DB(ctx).
		Model(&models.Branch{ID: branch.ID}).
		Select("name", "address", "contact", "province_code", "district_code", "ward_code",
			"province_name", "district_name", "ward_name", "updated_at").
		Updates(branch).Error
}

// Delete removes the branch and reports whether a row was deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Branch{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountByProvince groups branches by province, largest first.
func (r *Repository) CountByProvince(ctx context.Context) ([]ProvinceStat, error) {
	var rows []ProvinceStat
	err := r.DB(ctx).
		Model(&models.Branch{}).
		Select("province_code, MAX(province_name) AS province_name, COUNT(*) AS count").
		Group("province_code").
		Order("count DESC").
		Order("province_code ASC").
		Scan(&rows).Error
	return rows, err
}
