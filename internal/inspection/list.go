package inspection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isoqms/qms/internal/models"
	"gorm.io/gorm"
)

// Default and maximum page sizes for List.
const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// ListFilters narrows List. Status and Type ignore empty values and "ALL".
type ListFilters struct {
	Search string
	Status string
	Type   string
	Page   int
	Limit  int
}

// Summary is the list projection of a record. It carries no images or items.
type Summary struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ProjectCode string    `json:"projectCode"`
	ProjectName string    `json:"projectName,omitempty"`
	ItemTitle   string    `json:"itemTitle,omitempty"`
	Inspector   string    `json:"inspector"`
	Status      string    `json:"status"`
	Date        string    `json:"date,omitempty"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ListResult is one page of summaries and the total matching count.
type ListResult struct {
	Items []Summary `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// likeEscaper escapes LIKE wildcards for ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List returns summaries from the master index, most recently updated first.
func (s *Store) List(ctx context.Context, f ListFilters) (*ListResult, error) {
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	scope := func(db *gorm.DB) *gorm.DB {
		if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
			like := "%" + likeEscaper.Replace(q) + "%"
			db = db.Where("LOWER(project_code) LIKE ? ESCAPE '!' OR LOWER(project_name) LIKE ? ESCAPE '!' OR LOWER(item_title) LIKE ? ESCAPE '!'", like, like, like)
		}
		if v := filterValue(f.Status); v != "" {
			db = db.Where("status = ?", v)
		}
		if v := filterValue(f.Type); v != "" {
			db = db.Where("type = ?", v)
		}
		return db
	}

	result := &ListResult{Page: page, Limit: limit, Items: []Summary{}}
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		var rows []models.InspectionIndex
		if err := s.db.WithContext(ctx).Model(&models.InspectionIndex{}).Scopes(scope).Count(&result.Total).Error; err != nil {
			return err
		}
		err := s.db.WithContext(ctx).Scopes(scope).
			Order("updated_at DESC").Order("id ASC").
			Offset((page - 1) * limit).Limit(limit).
			Find(&rows).Error
		if err != nil {
			return err
		}
		result.Items = make([]Summary, 0, len(rows))
		for _, r := range rows {
			result.Items = append(result.Items, summaryOf(r))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspection: list: %w", err)
	}
	return result, nil
}

// Stats are dashboard counts over all records.
type Stats struct {
	Total     int64            `json:"total"`
	Completed int64            `json:"completed"`
	Flagged   int64            `json:"flagged"`
	ByType    map[string]int64 `json:"byType"`
}

// Stats counts records by status and type. APPROVED records count as completed.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	type bucket struct {
		Status string
		Type   string
		N      int64
	}
	var buckets []bucket
	err := s.exec.Do(ctx, func(ctx context.Context) error {
		buckets = nil
		return s.db.WithContext(ctx).Model(&models.InspectionIndex{}).
			Select("status, type, COUNT(*) AS n").
			Group("status").Group("type").
			Scan(&buckets).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inspection: stats: %w", err)
	}

	st := &Stats{ByType: make(map[string]int64)}
	for _, b := range buckets {
		st.Total += b.N
		st.ByType[b.Type] += b.N
		switch models.InspectionStatus(b.Status) {
		case models.StatusCompleted, models.StatusApproved:
			st.Completed += b.N
		case models.StatusFlagged:
			st.Flagged += b.N
		}
	}
	return st, nil
}

func filterValue(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "ALL" {
		return ""
	}
	return v
}

func summaryOf(r models.InspectionIndex) Summary {
	return Summary{
		ID:          r.ID,
		Type:        r.Type,
		ProjectCode: r.ProjectCode,
		ProjectName: r.ProjectName,
		ItemTitle:   r.ItemTitle,
		Inspector:   r.Inspector,
		Status:      r.Status,
		Date:        r.InspectionDate,
		Score:       r.Score,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
