package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	var customer domain.Customer
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		customer = tx.PutCustomer(domain.Customer{
			Name:  req.Name,
			Email: req.Email,
			Phone: strings.TrimSpace(req.Phone),
		})
		return nil
	})
	return customer, err
}

// UpdateCustomer edits contact fields. Points and spend only change through
// sales and refunds.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	var customer domain.Customer
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		c, err := tx.Customer(id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", ledger.ErrInvalidRequest)
			}
			c.Name = name
		}
		if req.Email != nil {
			c.Email = strings.TrimSpace(*req.Email)
		}
		if req.Phone != nil {
			c.Phone = strings.TrimSpace(*req.Phone)
		}
		customer = tx.PutCustomer(c)
		return nil
	})
	return customer, err
}

func (s *Service) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	return s.ledger.Customer(id)
}

func (s *Service) ListCustomers(_ context.Context) []domain.Customer {
	return s.ledger.Customers()
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := requireManager(ctx); err != nil {
		return domain.Expense{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	var expense domain.Expense
	_, err := s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := tx.Location(req.LocationID); err != nil {
			return err
		}
		date := tx.Now()
		if req.Date != nil {
			date = req.Date.UTC()
		}
		expense = tx.PutExpense(domain.Expense{
			LocationID:  req.LocationID,
			Category:    strings.TrimSpace(req.Category),
			AmountCents: req.AmountCents,
			Description: req.Description,
			Date:        date,
			RecordedBy:  actorName(ctx),
		})
		return nil
	})
	return expense, err
}

func (s *Service) ListExpenses(_ context.Context, locationID string) []domain.Expense {
	return s.ledger.Expenses(locationID)
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Employee{}, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Employee{}, err
	}
	emp, err := s.putEmployee(ctx, req)
	if err != nil {
		return domain.Employee{}, err
	}
	s.log.Info().Str("employee_id", emp.ID).Str("role", emp.Role).Msg("employee created")
	return emp.Public(), nil
}

func (s *Service) putEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	if _, exists := s.ledger.EmployeeByEmail(req.Email); exists {
		return domain.Employee{}, fmt.Errorf("%w: employee %s", ledger.ErrDuplicate, req.Email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, err
	}
	var emp domain.Employee
	_, err = s.ledger.Update(ctx, func(tx *ledger.Tx) error {
		emp = tx.PutEmployee(domain.Employee{
			Name:    req.Name,
			Email:   req.Email,
			Role:    req.Role,
			PINHash: string(hash),
			Active:  true,
		})
		return nil
	})
	return emp, err
}

func (s *Service) ListEmployees(_ context.Context) []domain.Employee {
	employees := s.ledger.Employees()
	for i := range employees {
		employees[i] = employees[i].Public()
	}
	return employees
}

// BootstrapAdmin creates the first admin account when the directory is empty.
// It reports whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, email, pin string) (bool, error) {
	if len(s.ledger.Employees()) > 0 {
		return false, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pin == "" {
		return false, fmt.Errorf("%w: seed admin email and PIN are required", ledger.ErrInvalidRequest)
	}
	emp, err := s.putEmployee(ctx, domain.EmployeeCreateRequest{Name: "Administrator", Email: email, Role: domain.RoleAdmin, PIN: pin})
	if err != nil {
		return false, err
	}
	s.log.Info().Str("employee_id", emp.ID).Str("email", emp.Email).Msg("seed admin created")
	return true, nil
}
