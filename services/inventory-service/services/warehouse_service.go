package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/yashrajoria/stock-ledger/services/common/errors"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/models"
	"github.com/yashrajoria/stock-ledger/services/inventory-service/repository"
	"go.uber.org/zap"
)

// WarehouseService manages warehouse master data. The ledger only reads
// from it through GetByID.
type WarehouseService struct {
	repo   repository.WarehouseRepository
	logger *zap.Logger
}

func NewWarehouseService(repo repository.WarehouseRepository, logger *zap.Logger) *WarehouseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WarehouseService{repo: repo, logger: logger}
}

func (s *WarehouseService) GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "warehouse %s not found", id)
	}
	return w, nil
}

// GetByCode only finds active warehouses.
func (s *WarehouseService) GetByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	w, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, notFoundOr(err, "warehouse %q not found", code)
	}
	if !w.IsActive {
		return nil, apperrors.ErrNotFound.WithMessage("warehouse %q not found", code)
	}
	return w, nil
}

func (s *WarehouseService) ListActive(ctx context.Context) ([]models.Warehouse, error) {
	ws, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}
	if ws == nil {
		ws = []models.Warehouse{}
	}
	return ws, nil
}

func (s *WarehouseService) Create(ctx context.Context, req *models.CreateWarehouseRequest) (*models.Warehouse, error) {
	name, code := strings.TrimSpace(req.Name), strings.TrimSpace(req.Code)
	if name == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("name is required")
	}
	if code == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("code is required")
	}

	w := &models.Warehouse{
		ID:       uuid.New(),
		Name:     name,
		Code:     code,
		Address:  req.Address,
		Phone:    req.Phone,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrDuplicateWarehouseCode.WithMessage("warehouse code %q already exists", code)
		}
		s.logger.Error("Failed to create warehouse", zap.String("code", code), zap.Error(err))
		return nil, apperrors.ErrInternalServer.Wrap(err)
	}

	s.logger.Info("Warehouse created", zap.String("warehouse_id", w.ID.String()), zap.String("code", w.Code))
	return w, nil
}

// Update applies the non-nil fields of req. The code stays unique across
// all warehouses, active or not.
func (s *WarehouseService) Update(ctx context.Context, id uuid.UUID, req *models.UpdateWarehouseRequest) (*models.Warehouse, error) {
	w, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "warehouse %s not found", id)
	}

	if req.Name != nil {
		w.Name = strings.TrimSpace(*req.Name)
	}
	if req.Code != nil {
		w.Code = strings.TrimSpace(*req.Code)
	}
	if w.Name == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("name is required")
	}
	if w.Code == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("code is required")
	}
	if req.Address != nil {
		w.Address = req.Address
	}
	if req.Phone != nil {
		w.Phone = req.Phone
	}
	if req.IsActive != nil {
		w.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.ErrDuplicateWarehouseCode.WithMessage("warehouse code %q already exists", w.Code)
		}
		return nil, notFoundOr(err, "warehouse %s not found", id)
	}

	s.logger.Info("Warehouse updated",
		zap.String("warehouse_id", id.String()),
		zap.String("code", w.Code),
		zap.Bool("is_active", w.IsActive))
	return w, nil
}

// Deactivate soft-disables a warehouse. Its stock rows and history stay
// in place; the ledger rejects further movements against it.
func (s *WarehouseService) Deactivate(ctx context.Context, id uuid.UUID) error {
	inactive := false
	if _, err := s.Update(ctx, id, &models.UpdateWarehouseRequest{IsActive: &inactive}); err != nil {
		return err
	}
	s.logger.Info("Warehouse deactivated", zap.String("warehouse_id", id.String()))
	return nil
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.ErrNotFound.WithMessage(format, args...).Wrap(err)
	}
	return apperrors.ErrInternalServer.Wrap(fmt.Errorf("warehouse lookup: %w", err))
}
