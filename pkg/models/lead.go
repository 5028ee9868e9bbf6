package models

// LeadSource 线索来源
type LeadSource string

const (
	LeadContact    LeadSource = "contact"
	LeadLandlord   LeadSource = "landlord"
	LeadNewsletter LeadSource = "newsletter"
	LeadExpert     LeadSource = "expert"
)

// Valid reports whether s is a known source.
func (s LeadSource) Valid() bool {
	switch s {
	case LeadContact, LeadLandlord, LeadNewsletter, LeadExpert:
		return true
	}
	return false
}

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadClosed    LeadStatus = "closed"
)

// Lead 公开表单收集的联系线索；专家申请以 source=expert 存储，细节放在 details
type Lead struct {
	Base
	Name     string     `json:"name" db:"name"`
	Email    string     `json:"email" db:"email"`
	Phone    string     `json:"phone" db:"phone"`
	Company  string     `json:"company" db:"company"`
	Message  string     `json:"message" db:"message"`
	Source   LeadSource `json:"source" db:"source"`
	Interest string     `json:"interest" db:"interest"`
	Details  JSONMap    `json:"details" db:"details"`
	Status   LeadStatus `json:"status" db:"status"`
}

func (*Lead) TableName() string { return "leads" }
