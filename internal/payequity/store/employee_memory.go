package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	id "parity/pkg/domain"
	"parity/pkg/platform/sentinel"

	"parity/internal/payequity/models"
)

// InMemoryEmployees is a map-backed employee repository for tests and local runs.
type InMemoryEmployees struct {
	mu        sync.RWMutex
	employees map[id.EmployeeID]models.Employee
}

func NewInMemoryEmployees() *InMemoryEmployees {
	return &InMemoryEmployees{employees: make(map[id.EmployeeID]models.Employee)}
}

func (s *InMemoryEmployees) Create(_ context.Context, e *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.employees[e.ID]; exists {
		return sentinel.ErrConflict
	}
	s.employees[e.ID] = copyEmployee(*e)
	return nil
}

func (s *InMemoryEmployees) Update(_ context.Context, e *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.employees[e.ID]
	if !ok || existing.CompanyID != e.CompanyID {
		return sentinel.ErrNotFound
	}
	s.employees[e.ID] = copyEmployee(*e)
	return nil
}

func (s *InMemoryEmployees) FindByID(_ context.Context, companyID id.CompanyID, employeeID id.EmployeeID) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[employeeID]
	if !ok || e.CompanyID != companyID {
		return nil, sentinel.ErrNotFound
	}
	out := copyEmployee(e)
	return &out, nil
}

func (s *InMemoryEmployees) ListByCompany(_ context.Context, companyID id.CompanyID) ([]models.Employee, error) {
	return s.list(companyID, false), nil
}

func (s *InMemoryEmployees) ListActiveByCompany(_ context.Context, companyID id.CompanyID) ([]models.Employee, error) {
	return s.list(companyID, true), nil
}

func (s *InMemoryEmployees) list(companyID id.CompanyID, activeOnly bool) []models.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Employee, 0)
	for _, e := range s.employees {
		if e.CompanyID != companyID || (activeOnly && !e.Active) {
			continue
		}
		out = append(out, copyEmployee(e))
	}
	slices.SortFunc(out, func(a, b models.Employee) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}

func copyEmployee(e models.Employee) models.Employee {
	if e.Salary != nil {
		e.Salary = models.Float(*e.Salary)
	}
	return e
}

// InMemorySnapshots holds the latest snapshot per company. Replace swaps the
// whole snapshot under the lock so readers see either the old or the new one.
type InMemorySnapshots struct {
	mu        sync.RWMutex
	snapshots map[id.CompanyID]models.Snapshot
}

func NewInMemorySnapshots() *InMemorySnapshots {
	return &InMemorySnapshots{snapshots: make(map[id.CompanyID]models.Snapshot)}
}

func (s *InMemorySnapshots) Get(_ context.Context, companyID id.CompanyID) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[companyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := copySnapshot(snap)
	return &out, nil
}

func (s *InMemorySnapshots) Replace(_ context.Context, snapshot *models.Snapshot) error {
	cp := copySnapshot(*snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.CompanyID] = cp
	return nil
}

func copySnapshot(snap models.Snapshot) models.Snapshot {
	groups := make([]models.PayGroupStats, len(snap.Groups))
	for i, g := range snap.Groups {
		if g.AverageSalary != nil {
			g.AverageSalary = models.Float(*g.AverageSalary)
		}
		if g.MedianSalary != nil {
			g.MedianSalary = models.Float(*g.MedianSalary)
		}
		if g.GenderGapPercent != nil {
			g.GenderGapPercent = models.Float(*g.GenderGapPercent)
		}
		if g.AverageByGender != nil {
			g.AverageByGender = maps.Clone(g.AverageByGender)
		}
		groups[i] = g
	}
	snap.Groups = groups
	return snap
}
