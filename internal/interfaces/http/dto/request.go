package dto

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	apperrors "spec-forge-api/pkg/errors"
)

// DefaultStaleAfter 未指定 older_than 时的滞留阈值
const DefaultStaleAfter = 24 * time.Hour

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Pagination 转换为仓储分页参数（含上下限规范化）
func (r PageRequest) Pagination() repository.Pagination {
	return repository.NewPagination(r.Page, r.PageSize)
}

// BindPage 从 query 绑定分页参数，非法值回退到默认
func BindPage(c *gin.Context) PageRequest {
	p := PageRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	norm := p.Pagination()
	p.Page, p.PageSize = norm.Page, norm.PageSize
	return p
}

// StaleQuery 滞留项目查询参数
type StaleQuery struct {
	Status    entity.ProjectStatus
	OlderThan time.Duration
	PageRequest
}

// BindStaleQuery 解析 status 与 older_than（Go duration）
func BindStaleQuery(c *gin.Context) (StaleQuery, error) {
	q := StaleQuery{
		Status:      entity.ProjectStatus(c.Query("status")),
		OlderThan:   DefaultStaleAfter,
		PageRequest: BindPage(c),
	}
	if !q.Status.IsValid() {
		return q, apperrors.ErrInvalidParam.WithDetail("status must be a project status")
	}
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return q, apperrors.ErrInvalidParam.WithDetail("older_than must be a positive duration such as 36h")
		}
		q.OlderThan = d
	}
	return q, nil
}

// IsAsync ?async=true 时生成任务走队列
func IsAsync(c *gin.Context) bool {
	v, err := strconv.ParseBool(c.Query("async"))
	return err == nil && v
}

// BindProjectID 从 URI 读取项目 ID
func BindProjectID(c *gin.Context) string {
	return c.Param("pid")
}

func queryInt(c *gin.Context, key string, def int) int {
	s := c.Query(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
