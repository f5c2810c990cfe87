// Package audit reads the audit trail written by the change workflow.
package audit

import (
	"context"
	"errors"
	"fmt"
)

const (
	defaultPageSize = 20
	// MaxExportRows caps CSV exports.
	MaxExportRows = 10000
)

// ErrExportTooLarge is returned when an export would exceed MaxExportRows.
var ErrExportTooLarge = errors.New("audit: export exceeds row limit")

// Repository reads audit rows ordered newest first.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Service exposes timeline reads over audit_logs.
type Service struct {
	repo Repository
}

// NewService constructs the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit rows. One extra row is fetched to learn
// whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	size := filters.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	rows, err := s.repo.Window(ctx, filters, size+1, (page-1)*size)
	if err != nil {
		return Result{}, fmt.Errorf("audit timeline: %w", err)
	}
	paging := PagingInfo{Page: page, PageSize: size}
	if len(rows) > size {
		paging.HasNext = true
		paging.NextPage = page + 1
		rows = rows[:size]
	}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every row matching filters, up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	rows, err := s.repo.Window(ctx, filters, MaxExportRows+1, 0)
	if err != nil {
		return nil, fmt.Errorf("audit export: %w", err)
	}
	if len(rows) > MaxExportRows {
		return nil, ErrExportTooLarge
	}
	return rows, nil
}
