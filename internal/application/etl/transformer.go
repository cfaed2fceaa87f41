package etl

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
)

// Entity names used in transform errors and logs
const (
	entityBranch   = "branch"
	entityArticle  = "article"
	entityCustomer = "customer"
	entitySale     = "sale"
)

// Transformer maps raw API records onto canonical entities. Apart from
// error logging it has no side effects.
type Transformer struct {
	now      func() time.Time
	validate *validator.Validate
	logger   *zap.Logger
}

// TransformerOption configures a Transformer
type TransformerOption func(*Transformer)

// WithClock sets the clock used for defaulted timestamps
func WithClock(now func() time.Time) TransformerOption {
	return func(t *Transformer) {
		t.now = now
	}
}

// NewTransformer creates a transformer
func NewTransformer(logger *zap.Logger, opts ...TransformerOption) *Transformer {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their API names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	t := &Transformer{
		now:      time.Now,
		validate: v,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TransformBranch maps one branch record
func (t *Transformer) TransformBranch(raw etl.RawRecord) (etl.Branch, error) {
	b, err := t.branch(raw)
	if err == nil {
		err = t.check(entityBranch, &b)
	}
	if err != nil {
		t.logFailure(entityBranch, raw, err)
		return etl.Branch{}, err
	}
	return b, nil
}

func (t *Transformer) branch(raw etl.RawRecord) (etl.Branch, error) {
	number, err := requiredInt(raw, entityBranch, "branchNumber")
	if err != nil {
		return etl.Branch{}, err
	}

	b := etl.Branch{
		ID:           stringOr(raw, "id", fmt.Sprintf("br_%d", number)),
		BranchNumber: number,
		Name:         stringOr(raw, "name", fmt.Sprintf("Branch %d", number)),
		Address:      stringOr(raw, "address", ""),
		Phone:        optionalString(raw, "phone"),
		Email:        optionalString(raw, "email"),
		Type:         stringOr(raw, "type", "physical"),
	}
	if b.IsActive, err = boolOr(raw, entityBranch, "isActive", true); err != nil {
		return etl.Branch{}, err
	}
	if b.LastUpdated, err = t.timeOrNow(raw, entityBranch, "lastChange"); err != nil {
		return etl.Branch{}, err
	}
	return b, nil
}

// TransformArticle maps one article record
func (t *Transformer) TransformArticle(raw etl.RawRecord) (etl.Article, error) {
	a, err := t.article(raw)
	if err == nil {
		err = t.check(entityArticle, &a)
	}
	if err != nil {
		t.logFailure(entityArticle, raw, err)
		return etl.Article{}, err
	}
	return a, nil
}

func (t *Transformer) article(raw etl.RawRecord) (etl.Article, error) {
	number, err := requiredInt64(raw, entityArticle, "articleNumber")
	if err != nil {
		return etl.Article{}, err
	}

	a := etl.Article{
		ArticleNumber: number,
		Name:          stringOr(raw, "name", fmt.Sprintf("Article %d", number)),
		Description:   optionalString(raw, "description"),
		Category:      optionalString(raw, "category"),
	}
	if a.Price, err = decimalOr(raw, entityArticle, "price"); err != nil {
		return etl.Article{}, err
	}
	if a.LastUpdated, err = t.timeOrNow(raw, entityArticle, "lastChange"); err != nil {
		return etl.Article{}, err
	}
	return a, nil
}

// TransformCustomer maps one customer record
func (t *Transformer) TransformCustomer(raw etl.RawRecord) (etl.Customer, error) {
	c, err := t.customer(raw)
	if err == nil {
		err = t.check(entityCustomer, &c)
	}
	if err != nil {
		t.logFailure(entityCustomer, raw, err)
		return etl.Customer{}, err
	}
	return c, nil
}

func (t *Transformer) customer(raw etl.RawRecord) (etl.Customer, error) {
	number, err := requiredInt(raw, entityCustomer, "customerNumber")
	if err != nil {
		return etl.Customer{}, err
	}

	c := etl.Customer{
		CustomerNumber: number,
		FirstName:      optionalString(raw, "firstName"),
		LastName:       optionalString(raw, "lastName"),
		Email:          optionalString(raw, "email"),
		Phone:          optionalString(raw, "phone"),
	}
	if v, ok := value(raw, "lastPurchaseDate"); ok {
		ts, err := toTime(v)
		if err != nil {
			return etl.Customer{}, etl.NewTransformError(entityCustomer, "lastPurchaseDate", err)
		}
		c.LastPurchaseDate = &ts
	}
	if c.IsActive, err = boolOr(raw, entityCustomer, "isActive", true); err != nil {
		return etl.Customer{}, err
	}
	if c.LastUpdated, err = t.timeOrNow(raw, entityCustomer, "lastChange"); err != nil {
		return etl.Customer{}, err
	}
	return c, nil
}

// TransformSale maps one sale record
func (t *Transformer) TransformSale(raw etl.RawRecord) (etl.Sale, error) {
	s, err := t.sale(raw)
	if err == nil {
		err = t.check(entitySale, &s)
	}
	if err != nil {
		t.logFailure(entitySale, raw, err)
		return etl.Sale{}, err
	}
	return s, nil
}

func (t *Transformer) sale(raw etl.RawRecord) (etl.Sale, error) {
	var (
		s   etl.Sale
		err error
	)

	id, ok := value(raw, "id")
	if !ok {
		return etl.Sale{}, etl.NewTransformError(entitySale, "id", errMissing)
	}
	s.ID = toString(id)

	if s.BranchNumber, err = requiredInt(raw, entitySale, "branchNumber"); err != nil {
		return etl.Sale{}, err
	}

	date, ok := value(raw, "date")
	if !ok {
		return etl.Sale{}, etl.NewTransformError(entitySale, "date", errMissing)
	}
	if s.Date, err = toTime(date); err != nil {
		return etl.Sale{}, etl.NewTransformError(entitySale, "date", err)
	}

	int64Fields := []struct {
		key string
		dst *int64
	}{
		{"articleNumber", &s.ArticleNumber},
		{"articleSizeNumber", &s.ArticleSizeNumber},
		{"receiptNumber", &s.ReceiptNumber},
	}
	for _, f := range int64Fields {
		if *f.dst, err = int64Or(raw, entitySale, f.key, 0); err != nil {
			return etl.Sale{}, err
		}
	}

	intFields := []struct {
		key  string
		dst  *int
		dflt int
	}{
		{"customerNumber", &s.CustomerNumber, 0},
		{"staffNumber", &s.StaffNumber, 0},
		{"quantity", &s.Quantity, 1},
		{"type", &s.Type, 0},
	}
	for _, f := range intFields {
		n, err := int64Or(raw, entitySale, f.key, int64(f.dflt))
		if err != nil {
			return etl.Sale{}, err
		}
		*f.dst = int(n)
	}

	moneyFields := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"purchasePrice", &s.PurchasePrice},
		{"salePrice", &s.SalePrice},
		{"labelPrice", &s.LabelPrice},
		{"discount", &s.Discount},
	}
	for _, f := range moneyFields {
		if *f.dst, err = decimalOr(raw, entitySale, f.key); err != nil {
			return etl.Sale{}, err
		}
	}

	if s.IsDeleted, err = boolOr(raw, entitySale, "isDeleted", false); err != nil {
		return etl.Sale{}, err
	}
	if s.LastChange, err = t.timeOrNow(raw, entitySale, "lastChange"); err != nil {
		return etl.Sale{}, err
	}
	return s, nil
}

// TransformBranches maps branch records in input order, stopping at the first failure
func (t *Transformer) TransformBranches(raws []etl.RawRecord) ([]etl.Branch, error) {
	t.logger.Info("Transforming branches", zap.Int("count", len(raws)))
	return transformAll(raws, t.TransformBranch)
}

// TransformArticles maps article records in input order, stopping at the first failure
func (t *Transformer) TransformArticles(raws []etl.RawRecord) ([]etl.Article, error) {
	t.logger.Info("Transforming articles", zap.Int("count", len(raws)))
	return transformAll(raws, t.TransformArticle)
}

// TransformCustomers maps customer records in input order, stopping at the first failure
func (t *Transformer) TransformCustomers(raws []etl.RawRecord) ([]etl.Customer, error) {
	t.logger.Info("Transforming customers", zap.Int("count", len(raws)))
	return transformAll(raws, t.TransformCustomer)
}

// TransformSales maps sale records in input order, stopping at the first failure
func (t *Transformer) TransformSales(raws []etl.RawRecord) ([]etl.Sale, error) {
	t.logger.Info("Transforming sales", zap.Int("count", len(raws)))
	return transformAll(raws, t.TransformSale)
}

func transformAll[T any](raws []etl.RawRecord, fn func(etl.RawRecord) (T, error)) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		v, err := fn(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// check runs the struct tag rules and reports the first violation
func (t *Transformer) check(entity string, v any) error {
	err := t.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return etl.NewTransformError(entity, fe.Field(), fmt.Errorf("failed %q rule", fe.Tag()))
	}
	return etl.NewTransformError(entity, "", err)
}

func (t *Transformer) logFailure(entity string, raw etl.RawRecord, err error) {
	t.logger.Error("Error transforming record",
		zap.String("entity", entity),
		zap.Any("record", raw),
		zap.Error(err),
	)
}

func (t *Transformer) timeOrNow(raw etl.RawRecord, entity, key string) (time.Time, error) {
	v, ok := value(raw, key)
	if !ok {
		return t.now(), nil
	}
	ts, err := toTime(v)
	if err != nil {
		return time.Time{}, etl.NewTransformError(entity, key, err)
	}
	return ts, nil
}

func requiredInt(raw etl.RawRecord, entity, key string) (int, error) {
	v, ok := value(raw, key)
	if !ok {
		return 0, etl.NewTransformError(entity, key, errMissing)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, etl.NewTransformError(entity, key, err)
	}
	return n, nil
}

func requiredInt64(raw etl.RawRecord, entity, key string) (int64, error) {
	v, ok := value(raw, key)
	if !ok {
		return 0, etl.NewTransformError(entity, key, errMissing)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, etl.NewTransformError(entity, key, err)
	}
	return n, nil
}

func int64Or(raw etl.RawRecord, entity, key string, dflt int64) (int64, error) {
	v, ok := value(raw, key)
	if !ok {
		return dflt, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, etl.NewTransformError(entity, key, err)
	}
	return n, nil
}

func decimalOr(raw etl.RawRecord, entity, key string) (decimal.Decimal, error) {
	v, ok := value(raw, key)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, etl.NewTransformError(entity, key, err)
	}
	return d, nil
}

func boolOr(raw etl.RawRecord, entity, key string, dflt bool) (bool, error) {
	v, ok := value(raw, key)
	if !ok {
		return dflt, nil
	}
	b, err := toBool(v)
	if err != nil {
		return false, etl.NewTransformError(entity, key, err)
	}
	return b, nil
}

func stringOr(raw etl.RawRecord, key, dflt string) string {
	v, ok := value(raw, key)
	if !ok {
		return dflt
	}
	if s := toString(v); s != "" {
		return s
	}
	return dflt
}
