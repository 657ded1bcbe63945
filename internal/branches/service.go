package branches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/integrity"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const cascadeTrigger = "branch_cascade_delete"

var sortColumns = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type branchRepository interface {
	Create(ctx context.Context, branch *models.Branch) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Branch, error)
	List(ctx context.Context, q listQuery) ([]models.Branch, int64, error)
	Update(ctx context.Context, branch *models.Branch) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CountByProvince(ctx context.Context) ([]ProvinceStat, error)
}

// Service exposes branch lifecycle operations for the admin console.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*BranchDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*BranchDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*BranchDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteWithCascade(ctx context.Context, id uuid.UUID) (*CascadeResult, error)
	ReferenceCount(ctx context.Context, id uuid.UUID) (*ReferenceSummary, error)
	Stats(ctx context.Context) (*Stats, error)
}

type service struct {
	repo      branchRepository
	validator address.Validator
	guard     integrity.Guard
	logg      *logger.Logger
}

func NewService(repo branchRepository, validator address.Validator, guard integrity.Guard, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("branch repository required")
	}
	if validator == nil {
		return nil, fmt.Errorf("address validator required")
	}
	if guard == nil {
		return nil, fmt.Errorf("integrity guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, validator: validator, guard: guard, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*BranchDTO, error) {
	name := strings.TrimSpace(input.Name)
	addr := strings.TrimSpace(input.Address)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if addr == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}

	validated, err := s.validator.Validate(ctx, input.ProvinceCode, input.DistrictCode, input.WardCode)
	if err != nil {
		return nil, err
	}

	branch := &models.Branch{
		Name:    name,
		Address: addr,
		Contact: normalizeContact(input.Contact),
	}
	applyAddress(branch, validated)
	if err := s.repo.Create(ctx, branch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create branch")
	}
	s.logg.Info(s.logg.WithBranchID(ctx, branch.ID.String()), "branch created")
	return FromModel(branch), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	page := pagination.Params{Page: params.Page, Limit: params.Limit}.Normalize()

	column := "created_at"
	if params.SortBy != "" {
		c, ok := sortColumns[strings.ToLower(strings.TrimSpace(params.SortBy))]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sort_by must be one of name, created_at, updated_at")
		}
		column = c
	}
	dir := "DESC"
	switch strings.ToLower(strings.TrimSpace(params.SortOrder)) {
	case "", "desc":
	case "asc":
		dir = "ASC"
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sort_order must be asc or desc")
	}

	rows, total, err := s.repo.List(ctx, listQuery{
		search:     strings.TrimSpace(params.Search),
		sortColumn: column,
		sortDir:    dir,
		limit:      page.Limit,
		offset:     page.Offset(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list branches")
	}

	items := make([]BranchDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: pagination.TotalPages(total, page.Limit),
	}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*BranchDTO, error) {
	branch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(branch), nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*BranchDTO, error) {
	branch, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		branch.Name = name
	}
	if input.Address != nil {
		addr := strings.TrimSpace(*input.Address)
		if addr == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "address cannot be empty")
		}
		branch.Address = addr
	}
	if input.Contact != nil {
		branch.Contact = normalizeContact(input.Contact)
	}

	if input.ProvinceCode != nil || input.DistrictCode != nil || input.WardCode != nil {
		if input.ProvinceCode == nil || input.DistrictCode == nil || input.WardCode == nil {
			return nil, pkgerrors.IncompleteAddress()
		}
		validated, err := s.validator.Validate(ctx, *input.ProvinceCode, *input.DistrictCode, *input.WardCode)
		if err != nil {
			return nil, err
		}
		applyAddress(branch, validated)
	}

	branch.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, branch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update branch")
	}
	return FromModel(branch), nil
}

// Delete removes a branch no product inventory references.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	count, err := s.guard.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return pkgerrors.BranchInUse(id.String(), count)
	}
	if err := s.remove(ctx, id); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithBranchID(ctx, id.String()), "branch deleted")
	return nil
}

// DeleteWithCascade strips the branch from every product's inventory,
// deletes it, then starts a background orphan sweep. A failed sweep does not
// undo the deletion.
func (s *service) DeleteWithCascade(ctx context.Context, id uuid.UUID) (*CascadeResult, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	updated, err := s.guard.StripReferences(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.remove(ctx, id); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithBranchID(ctx, id.String()), map[string]any{
		"products_updated": updated,
	}), "branch deleted with cascade")

	s.guard.CleanupAsync(ctx, cascadeTrigger)
	return &CascadeResult{BranchID: id, ProductsUpdated: updated}, nil
}

func (s *service) ReferenceCount(ctx context.Context, id uuid.UUID) (*ReferenceSummary, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	count, err := s.guard.CountReferences(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReferenceSummary{BranchID: id, ProductCount: count, Deletable: count == 0}, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.repo.CountByProvince(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "branch stats")
	}
	stats := &Stats{ByProvince: make([]ProvinceStat, 0, len(rows))}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByProvince = append(stats.ByProvince, row)
	}
	return stats, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	branch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, branchNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load branch")
	}
	return branch, nil
}

func (s *service) remove(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete branch")
	}
	if !deleted {
		return branchNotFound()
	}
	return nil
}

func branchNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "branch not found").WithReason(pkgerrors.ReasonBranchNotFound)
}

func applyAddress(branch *models.Branch, validated address.ValidatedAddress) {
	branch.ProvinceCode = validated.Province.ID
	branch.DistrictCode = validated.District.ID
	branch.WardCode = validated.Ward.ID
	branch.ProvinceName = validated.Province.Name
	branch.DistrictName = validated.District.Name
	branch.WardName = validated.Ward.Name
}

func normalizeContact(contact *string) *string {
	if contact == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*contact)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
