package etl

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is a record as decoded from the remote API.
// Numeric values are kept as json.Number by the client.
type RawRecord map[string]any

// ---------------------------------------------------------------------------
// Canonical Entities
// ---------------------------------------------------------------------------

// Branch is a store location keyed by its branch number
type Branch struct {
	ID           string    `json:"id" validate:"required"`
	BranchNumber int       `json:"branchNumber" validate:"required"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Phone        *string   `json:"phone,omitempty"`
	Email        *string   `json:"email,omitempty"`
	IsActive     bool      `json:"isActive"`
	Type         string    `json:"type"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// Article is a sellable item keyed by its article number
type Article struct {
	ArticleNumber int64           `json:"articleNumber" validate:"required"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	Category      *string         `json:"category,omitempty"`
	Price         decimal.Decimal `json:"price"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Customer is a known buyer keyed by its customer number
type Customer struct {
	CustomerNumber   int        `json:"customerNumber" validate:"required"`
	FirstName        *string    `json:"firstName,omitempty"`
	LastName         *string    `json:"lastName,omitempty"`
	Email            *string    `json:"email,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	LastPurchaseDate *time.Time `json:"lastPurchaseDate,omitempty"`
	IsActive         bool       `json:"isActive"`
	LastUpdated      time.Time  `json:"lastUpdated"`
}

// Sale is a single receipt line keyed by the remote id.
// A sale always references an existing branch.
type Sale struct {
	ID                string          `json:"id" validate:"required"`
	BranchNumber      int             `json:"branchNumber" validate:"required"`
	ArticleNumber     int64           `json:"articleNumber"`
	ArticleSizeNumber int64           `json:"articleSizeNumber"`
	CustomerNumber    int             `json:"customerNumber"`
	StaffNumber       int             `json:"staffNumber"`
	ReceiptNumber     int64           `json:"receiptNumber"`
	Date              time.Time       `json:"date" validate:"required"`
	PurchasePrice     decimal.Decimal `json:"purchasePrice"`
	SalePrice         decimal.Decimal `json:"salePrice"`
	LabelPrice        decimal.Decimal `json:"labelPrice"`
	Discount          decimal.Decimal `json:"discount"`
	Quantity          int             `json:"quantity"`
	Type              int             `json:"type"`
	IsDeleted         bool            `json:"isDeleted"`
	LastChange        time.Time       `json:"lastChange"`
}

// ---------------------------------------------------------------------------
// Run History
// ---------------------------------------------------------------------------

// SyncStatus is the lifecycle state of a SyncRun
type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// IsTerminal returns true once a run can no longer change
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// Job names recorded in the run history
const (
	JobLoadBranches  = "load_branches"
	JobLoadArticles  = "load_articles"
	JobLoadCustomers = "load_customers"
	JobLoadSales     = "load_sales"
)

// SyncRun is one load operation's timing, volume and outcome
type SyncRun struct {
	ID               uint       `json:"id"`
	JobName          string     `json:"jobName"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	RecordsProcessed int        `json:"recordsProcessed"`
	Status           SyncStatus `json:"status"`
	Error            *string    `json:"error,omitempty"`
	LastUpdated      time.Time  `json:"lastUpdated"`
}

// Duration returns the elapsed time of a finished run, or zero while running
func (r SyncRun) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// TableCounts holds the number of rows per synchronized table
type TableCounts struct {
	Branches  int64 `json:"branches"`
	Articles  int64 `json:"articles"`
	Customers int64 `json:"customers"`
	Sales     int64 `json:"sales"`
	Runs      int64 `json:"runs"`
}
