// Package repository 定义持久化网关接口，postgres 与 memory 两种驱动实现同一组契约
package repository

import "context"

type txKey struct{}

// Transactor 事务通过 context 传播，仓储实现从 ctx 中取出当前事务
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithTx 把驱动相关的事务句柄放入 ctx
func WithTx(ctx context.Context, tx any) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 取出 WithTx 放入的句柄，没有时返回 nil
func TxFrom(ctx context.Context) any {
	return ctx.Value(txKey{})
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 项目列表与滞留项目查询共用的分页参数
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 页码从 1 开始，page_size 限制在 [1, MaxPageSize]
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func (p Pagination) Limit() int {
	return p.PageSize
}

// PagedResult 分页结果；Items 为空时序列化为 []
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	size := int64(pagination.PageSize)
	var totalPages int64
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: int(totalPages),
		HasMore:    int64(pagination.Page) < totalPages,
	}
}
