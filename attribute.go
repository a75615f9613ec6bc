package kapytal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PathSeparator joins tree item names into a path.
const PathSeparator = "/"

// AttributeRole distinguishes payees from tags.
type AttributeRole int

const (
	Payee AttributeRole = iota
	Tag
)

func (r AttributeRole) String() string {
	switch r {
	case Payee:
		return "PAYEE"
	case Tag:
		return "TAG"
	default:
		return fmt.Sprintf("AttributeRole(%d)", int(r))
	}
}

// ParseAttributeRole parses the String form of a role, case insensitive.
func ParseAttributeRole(s string) (AttributeRole, error) {
	switch strings.ToUpper(s) {
	case "PAYEE":
		return Payee, nil
	case "TAG":
		return Tag, nil
	}
	return 0, invalidf("unknown attribute role %q", s)
}

// Attribute is a named label, a payee or a tag.
type Attribute struct {
	identity
	role AttributeRole
}

// Role returns whether the attribute is a payee or a tag.
func (a *Attribute) Role() AttributeRole { return a.role }

func (a *Attribute) String() string { return a.name }

func newAttribute(name string, role AttributeRole, now time.Time) (*Attribute, error) {
	if err := validateName(strings.ToLower(role.String()), name, NameMaxLength, true); err != nil {
		return nil, err
	}
	return &Attribute{identity: newIdentity(name, now), role: role}, nil
}

// CategoryType is the kind of cash transaction a category can classify.
type CategoryType int

const (
	Income CategoryType = iota
	Expense
	IncomeAndExpense
)

// CategoryTypes lists every category type in their canonical order.
var CategoryTypes = []CategoryType{Income, Expense, IncomeAndExpense}

func (t CategoryType) String() string {
	switch t {
	case Income:
		return "INCOME"
	case Expense:
		return "EXPENSE"
	case IncomeAndExpense:
		return "INCOME_AND_EXPENSE"
	default:
		return fmt.Sprintf("CategoryType(%d)", int(t))
	}
}

// ParseCategoryType parses the String form of a category type, case insensitive.
func ParseCategoryType(s string) (CategoryType, error) {
	switch strings.ToUpper(s) {
	case "INCOME":
		return Income, nil
	case "EXPENSE":
		return Expense, nil
	case "INCOME_AND_EXPENSE", "DUAL_PURPOSE", "BOTH":
		return IncomeAndExpense, nil
	}
	return 0, invalidf("unknown category type %q", s)
}

// node is the part shared by every item of a forest: a stable id, a name and the derived path.
type node struct {
	identity
	id   uuid.UUID
	path string
}

// ID returns the item's identifier.
func (n *node) ID() uuid.UUID { return n.id }

// Path returns the ancestors' names and the item's name joined by PathSeparator.
func (n *node) Path() string { return n.path }

func (n *node) String() string { return n.path }

// Category classifies cash transactions. Its type is inherited from its parent and never changes.
type Category struct {
	node
	typ CategoryType
}

// Type returns the category type.
func (c *Category) Type() CategoryType { return c.typ }

// accepts reports whether the category can classify a transaction of type t.
func (c *Category) accepts(t CashTransactionType) bool {
	switch c.typ {
	case IncomeAndExpense:
		return true
	case Income:
		return t == IncomeTransaction
	case Expense:
		return t == ExpenseTransaction
	}
	return false
}

// splitPath returns the parent path and the last name of path.
func splitPath(path string) (parent, name string) {
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}
