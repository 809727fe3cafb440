package contracts

import "time"

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusOverdue   = "overdue"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	CategoryShowcase  = "showcase"
	CategorySponsored = "sponsored"
	CategoryOpen      = "open"
)

// LineItem is one creator/product entry within a stream. Name and CreatorName
// are required for the item to be considered valid; ExternalID is filled in
// lazily by link enrichment and treated as cached once present.
type LineItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatorName string `json:"creator_name"`
	CreatorID   string `json:"creator_id,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// StreamRecord is a scheduled content-creation task. Item order is
// meaningful: it drives rendering order and "first item" summaries.
type StreamRecord struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id,omitempty"`
	OrganizationName string     `json:"organization_name,omitempty"`
	DueAt            time.Time  `json:"due_at"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Category         string     `json:"category"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Items            []LineItem `json:"items"`
}

// StreamPatch is a typed partial update. Only non-nil fields are applied;
// ID, OwnerID and CreatedAt are immutable and deliberately absent.
type StreamPatch struct {
	OrganizationName *string     `json:"organization_name,omitempty"`
	DueAt            *time.Time  `json:"due_at,omitempty"`
	Status           *string     `json:"status,omitempty"`
	Priority         *string     `json:"priority,omitempty"`
	Category         *string     `json:"category,omitempty"`
	Notes            *string     `json:"notes,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	Items            *[]LineItem `json:"items,omitempty"`
}

func (p StreamPatch) Apply(rec StreamRecord) StreamRecord {
	if p.OrganizationName != nil {
		rec.OrganizationName = *p.OrganizationName
	}
	if p.DueAt != nil {
		rec.DueAt = *p.DueAt
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Priority != nil {
		rec.Priority = *p.Priority
	}
	if p.Category != nil {
		rec.Category = *p.Category
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		rec.CompletedAt = &t
	}
	if p.Items != nil {
		items := make([]LineItem, len(*p.Items))
		copy(items, *p.Items)
		rec.Items = items
	}
	return rec
}

// OrganizationProfile is a named set of caption templates keyed by platform.
type OrganizationProfile struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Templates map[string]string `json:"templates"`
}
