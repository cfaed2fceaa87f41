package persistence

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
)

// ETLModels returns every model in dependency order for AutoMigrate
func ETLModels() []any {
	return []any{&BranchModel{}, &ArticleModel{}, &CustomerModel{}, &SaleModel{}, &ETLStatModel{}}
}

// BranchModel is the GORM model for branches
type BranchModel struct {
	ID           string    `gorm:"type:varchar(255);primaryKey"`
	BranchNumber int       `gorm:"uniqueIndex;not null"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Address      string    `gorm:"type:varchar(255)"`
	Phone        *string   `gorm:"type:varchar(255)"`
	Email        *string   `gorm:"type:varchar(255)"`
	IsActive     bool      `gorm:"not null"`
	Type         string    `gorm:"type:varchar(255)"`
	LastUpdated  time.Time `gorm:"not null"`

	// Sales puts the sales.branch_number foreign key on sales
	Sales []SaleModel `gorm:"foreignKey:BranchNumber;references:BranchNumber"`
}

// TableName returns the table name for the model
func (BranchModel) TableName() string {
	return "branches"
}

// BranchModelFromEntity creates a model from a domain entity
func BranchModelFromEntity(b etl.Branch) BranchModel {
	return BranchModel{
		ID:           b.ID,
		BranchNumber: b.BranchNumber,
		Name:         b.Name,
		Address:      b.Address,
		Phone:        b.Phone,
		Email:        b.Email,
		IsActive:     b.IsActive,
		Type:         b.Type,
		LastUpdated:  b.LastUpdated,
	}
}

// ToEntity converts the model to a domain entity
func (m *BranchModel) ToEntity() etl.Branch {
	return etl.Branch{
		ID:           m.ID,
		BranchNumber: m.BranchNumber,
		Name:         m.Name,
		Address:      m.Address,
		Phone:        m.Phone,
		Email:        m.Email,
		IsActive:     m.IsActive,
		Type:         m.Type,
		LastUpdated:  m.LastUpdated,
	}
}

// ArticleModel is the GORM model for articles
type ArticleModel struct {
	ArticleNumber int64           `gorm:"primaryKey;autoIncrement:false"`
	Name          string          `gorm:"type:varchar(255);not null"`
	Description   *string         `gorm:"type:text"`
	Category      *string         `gorm:"type:varchar(255);index"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2)"`
	LastUpdated   time.Time       `gorm:"not null"`
}

// TableName returns the table name for the model
func (ArticleModel) TableName() string {
	return "articles"
}

// ArticleModelFromEntity creates a model from a domain entity
func ArticleModelFromEntity(a etl.Article) ArticleModel {
	return ArticleModel{
		ArticleNumber: a.ArticleNumber,
		Name:          a.Name,
		Description:   a.Description,
		Category:      a.Category,
		Price:         a.Price,
		LastUpdated:   a.LastUpdated,
	}
}

// ToEntity converts the model to a domain entity
func (m *ArticleModel) ToEntity() etl.Article {
	return etl.Article{
		ArticleNumber: m.ArticleNumber,
		Name:          m.Name,
		Description:   m.Description,
		Category:      m.Category,
		Price:         m.Price,
		LastUpdated:   m.LastUpdated,
	}
}

// CustomerModel is the GORM model for customers
type CustomerModel struct {
	CustomerNumber   int        `gorm:"primaryKey;autoIncrement:false"`
	FirstName        *string    `gorm:"type:varchar(255)"`
	LastName         *string    `gorm:"type:varchar(255)"`
	Email            *string    `gorm:"type:varchar(255);index"`
	Phone            *string    `gorm:"type:varchar(255)"`
	LastPurchaseDate *time.Time `gorm:"index"`
	IsActive         bool       `gorm:"not null"`
	LastUpdated      time.Time  `gorm:"not null"`
}

// TableName returns the table name for the model
func (CustomerModel) TableName() string {
	return "customers"
}

// CustomerModelFromEntity creates a model from a domain entity
func CustomerModelFromEntity(c etl.Customer) CustomerModel {
	return CustomerModel{
		CustomerNumber:   c.CustomerNumber,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Email:            c.Email,
		Phone:            c.Phone,
		LastPurchaseDate: c.LastPurchaseDate,
		IsActive:         c.IsActive,
		LastUpdated:      c.LastUpdated,
	}
}

// ToEntity converts the model to a domain entity
func (m *CustomerModel) ToEntity() etl.Customer {
	return etl.Customer{
		CustomerNumber:   m.CustomerNumber,
		FirstName:        m.FirstName,
		LastName:         m.LastName,
		Email:            m.Email,
		Phone:            m.Phone,
		LastPurchaseDate: m.LastPurchaseDate,
		IsActive:         m.IsActive,
		LastUpdated:      m.LastUpdated,
	}
}

// SaleModel is the GORM model for sales. Every sale references a branch
// through branch_number, declared on BranchModel.Sales.
type SaleModel struct {
	ID                string          `gorm:"type:varchar(255);primaryKey"`
	BranchNumber      int             `gorm:"not null;index:idx_sales_branch_date,priority:1"`
	ArticleNumber     int64           `gorm:"not null;index"`
	ArticleSizeNumber int64           `gorm:"type:bigint"`
	CustomerNumber    int             `gorm:"index"`
	StaffNumber       int             `gorm:"type:integer"`
	ReceiptNumber     int64           `gorm:"type:bigint"`
	Date              time.Time       `gorm:"not null;index:idx_sales_branch_date,priority:2"`
	PurchasePrice     decimal.Decimal `gorm:"type:decimal(10,2)"`
	SalePrice         decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	LabelPrice        decimal.Decimal `gorm:"type:decimal(10,2)"`
	Discount          decimal.Decimal `gorm:"type:decimal(10,2)"`
	Quantity          int             `gorm:"not null"`
	Type              int             `gorm:"not null"`
	IsDeleted         bool            `gorm:"not null"`
	LastChange        time.Time       `gorm:"not null"`
}

// TableName returns the table name for the model
func (SaleModel) TableName() string {
	return "sales"
}

// SaleModelFromEntity creates a model from a domain entity
func SaleModelFromEntity(s etl.Sale) SaleModel {
	return SaleModel{
		ID:                s.ID,
		BranchNumber:      s.BranchNumber,
		ArticleNumber:     s.ArticleNumber,
		ArticleSizeNumber: s.ArticleSizeNumber,
		CustomerNumber:    s.CustomerNumber,
		StaffNumber:       s.StaffNumber,
		ReceiptNumber:     s.ReceiptNumber,
		Date:              s.Date,
		PurchasePrice:     s.PurchasePrice,
		SalePrice:         s.SalePrice,
		LabelPrice:        s.LabelPrice,
		Discount:          s.Discount,
		Quantity:          s.Quantity,
		Type:              s.Type,
		IsDeleted:         s.IsDeleted,
		LastChange:        s.LastChange,
	}
}

// ToEntity converts the model to a domain entity
func (m *SaleModel) ToEntity() etl.Sale {
	return etl.Sale{
		ID:                m.ID,
		BranchNumber:      m.BranchNumber,
		ArticleNumber:     m.ArticleNumber,
		ArticleSizeNumber: m.ArticleSizeNumber,
		CustomerNumber:    m.CustomerNumber,
		StaffNumber:       m.StaffNumber,
		ReceiptNumber:     m.ReceiptNumber,
		Date:              m.Date,
		PurchasePrice:     m.PurchasePrice,
		SalePrice:         m.SalePrice,
		LabelPrice:        m.LabelPrice,
		Discount:          m.Discount,
		Quantity:          m.Quantity,
		Type:              m.Type,
		IsDeleted:         m.IsDeleted,
		LastChange:        m.LastChange,
	}
}

// ETLStatModel is the GORM model for the load run history
type ETLStatModel struct {
	ID               uint       `gorm:"primaryKey;autoIncrement"`
	JobName          string     `gorm:"type:varchar(255);not null;index:idx_etl_stats_job_start,priority:1"`
	StartTime        time.Time  `gorm:"not null;index:idx_etl_stats_job_start,priority:2"`
	EndTime          *time.Time `gorm:"index"`
	RecordsProcessed int        `gorm:"not null"`
	Status           string     `gorm:"type:varchar(32);not null"`
	Error            *string    `gorm:"type:text"`
	LastUpdated      time.Time  `gorm:"not null"`
}

// TableName returns the table name for the model
func (ETLStatModel) TableName() string {
	return "etl_stats"
}

// ToEntity converts the model to a domain entity
func (m *ETLStatModel) ToEntity() etl.SyncRun {
	return etl.SyncRun{
		ID:               m.ID,
		JobName:          m.JobName,
		StartTime:        m.StartTime,
		EndTime:          m.EndTime,
		RecordsProcessed: m.RecordsProcessed,
		Status:           etl.SyncStatus(m.Status),
		Error:            m.Error,
		LastUpdated:      m.LastUpdated,
	}
}
