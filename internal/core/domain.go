package core

import (
	"fmt"
	"strings"
	"time"
)

// Well-known category names with engine-level meaning.
const (
	CategoryInitialBalance    = "Initial Balance"
	CategoryBalanceAdjustment = "Balance Adjustment"
	CategoryTransfer          = "Transfer"
	CategoryTransfers         = "Transfers"

	Uncategorized = "Uncategorized"
	Ungrouped     = "Ungrouped"
)

// Supported range of transaction and budget years.
const (
	MinYear = 1
	MaxYear = 9999
)

// AccountKind is the budget classification of an account.
type AccountKind int

const (
	OnBudget AccountKind = iota
	OffBudget
	External
)

func (k AccountKind) String() string {
	switch k {
	case OnBudget:
		return "On Budget"
	case OffBudget:
		return "Off Budget"
	case External:
		return "External"
	default:
		return fmt.Sprintf("AccountKind(%d)", int(k))
	}
}

// AccountType is a tagged variant: a kind plus an optional free-text
// subtype. Its text form is "On Budget", "On Budget - Checking",
// "Off Budget - Loan" or "External".
type AccountType struct {
	Kind    AccountKind
	Subtype string
}

// ParseAccountType parses the text form of an account type. Kind prefixes
// are matched case-insensitively; the subtype keeps its original case.
func ParseAccountType(s string) (AccountType, error) {
	s = strings.TrimSpace(s)
	for _, k := range []AccountKind{OnBudget, OffBudget, External} {
		prefix := k.String()
		if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
			continue
		}
		rest := strings.TrimSpace(s[len(prefix):])
		if rest == "" {
			return AccountType{Kind: k}, nil
		}
		if !strings.HasPrefix(rest, "-") {
			continue
		}
		return AccountType{Kind: k, Subtype: strings.TrimSpace(rest[1:])}, nil
	}
	return AccountType{}, fmt.Errorf("%w: %q", ErrInvalidAccountType, s)
}

func (t AccountType) String() string {
	if t.Subtype == "" {
		return t.Kind.String()
	}
	return t.Kind.String() + " - " + t.Subtype
}

// IsOnBudget reports whether t counts toward monthly budget tracking,
// whatever its subtype.
func (t AccountType) IsOnBudget() bool { return t.Kind == OnBudget }

// Is reports whether t belongs to kind k.
func (t AccountType) Is(k AccountKind) bool { return t.Kind == k }

func (t AccountType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AccountType) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type (
	Account struct {
		ID        string      `json:"id"`
		Name      string      `json:"name"`
		Type      AccountType `json:"account_type"`
		Currency  string      `json:"currency"`
		Balance   Money       `json:"balance"` // cached projection of replay
		IsDefault bool        `json:"is_default"`
		CreatedAt time.Time   `json:"created_at"`
		UpdatedAt time.Time   `json:"updated_at"`
	}

	// Transaction is one stored row. Amount is stated from the source
	// account's perspective: positive leaves the source, negative enters it.
	// When DestinationAccountID is set the row is a transfer and the
	// destination receives the opposite effect.
	Transaction struct {
		ID                   string    `json:"id"`
		SourceAccountID      string    `json:"source_account_id"`
		DestinationAccountID string    `json:"destination_account_id,omitempty"`
		DestinationName      string    `json:"destination_name,omitempty"`
		Description          string    `json:"description"`
		Amount               Money     `json:"amount"`
		Category             string    `json:"category,omitempty"`
		CategoryID           string    `json:"category_id,omitempty"`
		BudgetID             string    `json:"budget_id,omitempty"`
		Date                 time.Time `json:"transaction_date"`
		CreatedAt            time.Time `json:"created_at"`
		UpdatedAt            time.Time `json:"updated_at"`
	}

	Category struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		GroupID string `json:"group_id,omitempty"`
	}

	CategoryGroup struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	Budget struct {
		ID          string     `json:"id"`
		Name        string     `json:"name"`
		Description string     `json:"description,omitempty"`
		Amount      Money      `json:"amount"`
		StartDate   time.Time  `json:"start_date"`
		EndDate     *time.Time `json:"end_date,omitempty"`
		GroupID     string     `json:"group_id,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}
)

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 200 {
		return fmt.Errorf("%w: account name too long (max 200 characters)", ErrValidation)
	}
	return nil
}

// Effect returns the signed change t applies to accountID's balance.
func (t Transaction) Effect(accountID string) Money {
	switch accountID {
	case t.SourceAccountID:
		return t.Amount.Neg()
	case t.DestinationAccountID:
		return t.Amount
	default:
		return Money{}
	}
}

// Touches reports whether accountID is the source or destination of t.
func (t Transaction) Touches(accountID string) bool {
	return accountID != "" && (t.SourceAccountID == accountID || t.DestinationAccountID == accountID)
}

// Accounts returns the ids of the accounts t touches.
func (t Transaction) Accounts() []string {
	if t.DestinationAccountID == "" {
		return []string{t.SourceAccountID}
	}
	return []string{t.SourceAccountID, t.DestinationAccountID}
}

func (t Transaction) IsInitialBalance() bool {
	return strings.EqualFold(strings.TrimSpace(t.Category), CategoryInitialBalance)
}

func (t Transaction) IsTransferCategory() bool {
	c := strings.TrimSpace(t.Category)
	return strings.EqualFold(c, CategoryTransfer) || strings.EqualFold(c, CategoryTransfers)
}

// Validate checks the row shape. It does not check that referenced
// accounts exist.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return fmt.Errorf("%w: description too long (max 500 characters)", ErrValidation)
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if t.SourceAccountID == "" {
		return ErrMissingSource
	}
	if t.DestinationAccountID != "" && t.DestinationAccountID == t.SourceAccountID {
		return ErrSameAccount
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: transaction date is required", ErrValidation)
	}
	return CheckDate("transaction date", t.Date)
}

// CheckDate rejects instants outside years 1 to 9999.
func CheckDate(field string, d time.Time) error {
	if y := d.UTC().Year(); y < MinYear || y > MaxYear {
		return fmt.Errorf("%w: %s year %d out of range %d-%d", ErrValidation, field, y, MinYear, MaxYear)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if b.Amount.Cents <= 0 {
		return fmt.Errorf("%w: budget amount must be positive", ErrValidation)
	}
	if b.StartDate.IsZero() {
		return fmt.Errorf("%w: budget start date is required", ErrValidation)
	}
	if err := CheckDate("budget start date", b.StartDate); err != nil {
		return err
	}
	if b.EndDate != nil {
		if err := CheckDate("budget end date", *b.EndDate); err != nil {
			return err
		}
		if b.EndDate.Before(b.StartDate) {
			return fmt.Errorf("%w: budget end date must not precede start date", ErrValidation)
		}
	}
	return nil
}

// IsActive reports whether now falls inside the budget window.
func (b Budget) IsActive(now time.Time) bool {
	if now.Before(b.StartDate) {
		return false
	}
	return b.EndDate == nil || !now.After(*b.EndDate)
}
