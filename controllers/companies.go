package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"jobboard/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

var ErrInvalidPaging = errors.New("limit and offset must be non-negative integers")

// CompaniesController serves the read side of the board.
type CompaniesController struct {
	DB     *gorm.DB
	Logger *zap.SugaredLogger
}

func (cc CompaniesController) GetCompanies(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		RespondBadRequestErr(c, ErrInvalidPaging)
		return
	}

	tx := cc.DB.WithContext(c.Request.Context()).
		Where("status = ?", models.CompanyActive)
	if q := strings.TrimSpace(c.Query("query")); q != "" {
		tx = tx.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}

	var companies []models.Company
	if err := tx.Order("name").Offset(offset).Limit(limit).Find(&companies).Error; err != nil {
		cc.Logger.Errorw("list companies", "error", err)
		RespondInternalErr(c)
		return
	}

	RespondOK(c, gin.H{"companies": companies})
}

// GetCompanyJobs lists a company's active jobs, newest first.
func (cc CompaniesController) GetCompanyJobs(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		RespondBadRequestErr(c, ErrInvalidPaging)
		return
	}

	db := cc.DB.WithContext(c.Request.Context())
	company, err := models.GetCompanyBySlug(db, c.Param("slug"))
	if err != nil {
		cc.Logger.Errorw("get company", "slug", c.Param("slug"), "error", err)
		RespondInternalErr(c)
		return
	}
	if company == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "company not found"})
		return
	}

	tx := db.Where("company_id = ? AND status = ?", company.ID, models.JobActive)
	if fn := strings.TrimSpace(c.Query("function")); fn != "" {
		tx = tx.Where("function = ?", fn)
	}

	var jobs []models.Job
	if err := tx.Order("posted_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&jobs).Error; err != nil {
		cc.Logger.Errorw("list jobs", "company", company.Slug, "error", err)
		RespondInternalErr(c)
		return
	}

	RespondOK(c, gin.H{"company": company, "jobs": jobs})
}

func paging(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, offset, true
}
