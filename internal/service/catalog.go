package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

var (
	catalogWriters = []string{domain.RoleAdmin, domain.RolePharmacist}
	adminOnly      = []string{domain.RoleAdmin}
)

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.Categories().List(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	category, err := s.repo.Categories().Get(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}

	now := s.now()
	created, err := s.repo.Categories().Create(ctx, domain.Category{
		ID:          xid.New("cat"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.audit(ctx, "category_create", "category", created.ID, zap.String("name", created.Name))
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Category{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Category{}, err
	}
	existing, err := s.repo.Categories().Get(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, invalid("name", "must not be blank")
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Categories().Update(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}
	s.audit(ctx, "category_update", "category", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	if err := s.repo.Categories().Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "category_delete", "category", id)
	return nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.Suppliers().List(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.Suppliers().Get(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Supplier{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}

	now := s.now()
	created, err := s.repo.Suppliers().Create(ctx, domain.Supplier{
		ID:            xid.New("sup"),
		Name:          req.Name,
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         req.Email,
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_create", "supplier", created.ID, zap.String("name", created.Name))
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Supplier{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Supplier{}, err
	}
	existing, err := s.repo.Suppliers().Get(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Supplier{}, invalid("name", "must not be blank")
		}
		updated.Name = name
	}
	applyString(&updated.ContactPerson, req.ContactPerson)
	applyString(&updated.Phone, req.Phone)
	applyString(&updated.Email, req.Email)
	applyString(&updated.Address, req.Address)
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Suppliers().Update(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_update", "supplier", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	if err := s.repo.Suppliers().Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "supplier_delete", "supplier", id)
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.Customers().List(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.Customers().Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// CreateCustomer is open to every role so the counter can register walk-ins.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	now := s.now()
	created, err := s.repo.Customers().Create(ctx, domain.Customer{
		ID:        xid.New("cus"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.audit(ctx, "customer_create", "customer", created.ID)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	existing, err := s.repo.Customers().Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, invalid("name", "must not be blank")
		}
		updated.Name = name
	}
	applyString(&updated.Phone, req.Phone)
	applyString(&updated.Email, req.Email)
	applyString(&updated.Address, req.Address)
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Customers().Update(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.audit(ctx, "customer_update", "customer", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	if err := s.repo.Customers().Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "customer_delete", "customer", id)
	return nil
}

func (s *Service) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	return s.repo.Drugs().List(ctx)
}

// SearchDrugs matches query against name, generic name, brand and barcode.
func (s *Service) SearchDrugs(ctx context.Context, query string, limit int) ([]domain.Drug, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.Drugs().List(ctx)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.SearchDrugs(ctx, query, limit)
}

func (s *Service) GetDrug(ctx context.Context, id string) (domain.Drug, error) {
	drug, err := s.repo.Drugs().Get(ctx, id)
	if err != nil {
		return domain.Drug{}, err
	}
	return *drug, nil
}

func (s *Service) CreateDrug(ctx context.Context, req domain.DrugCreateRequest) (domain.Drug, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Drug{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Drug{}, err
	}

	now := s.now()
	created, err := s.repo.Drugs().Create(ctx, domain.Drug{
		ID:                   xid.New("drg"),
		Name:                 req.Name,
		GenericName:          strings.TrimSpace(req.GenericName),
		Brand:                strings.TrimSpace(req.Brand),
		Barcode:              strings.TrimSpace(req.Barcode),
		CategoryID:           trimPtr(req.CategoryID),
		Form:                 strings.ToLower(strings.TrimSpace(req.Form)),
		Strength:             strings.TrimSpace(req.Strength),
		Unit:                 strings.TrimSpace(req.Unit),
		RequiresPrescription: req.RequiresPrescription,
		Description:          strings.TrimSpace(req.Description),
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return domain.Drug{}, err
	}
	s.audit(ctx, "drug_create", "drug", created.ID, zap.String("name", created.Name))
	return *created, nil
}

func (s *Service) UpdateDrug(ctx context.Context, id string, req domain.DrugUpdateRequest) (domain.Drug, error) {
	if _, err := requireRole(ctx, catalogWriters...); err != nil {
		return domain.Drug{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Drug{}, err
	}
	existing, err := s.repo.Drugs().Get(ctx, id)
	if err != nil {
		return domain.Drug{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Drug{}, invalid("name", "must not be blank")
		}
		updated.Name = name
	}
	applyString(&updated.GenericName, req.GenericName)
	applyString(&updated.Brand, req.Brand)
	applyString(&updated.Barcode, req.Barcode)
	if req.CategoryID != nil {
		updated.CategoryID = trimPtr(req.CategoryID)
	}
	if req.Form != nil {
		updated.Form = strings.ToLower(strings.TrimSpace(*req.Form))
	}
	applyString(&updated.Strength, req.Strength)
	applyString(&updated.Unit, req.Unit)
	if req.RequiresPrescription != nil {
		updated.RequiresPrescription = *req.RequiresPrescription
	}
	applyString(&updated.Description, req.Description)
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Drugs().Update(ctx, updated)
	if err != nil {
		return domain.Drug{}, err
	}
	s.audit(ctx, "drug_update", "drug", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteDrug(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	if err := s.repo.Drugs().Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "drug_delete", "drug", id)
	return nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
