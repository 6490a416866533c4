package models

// Role is a user's authorization level.
type Role string

const (
	RoleUser     Role = "user"
	RoleReviewer Role = "reviewer"
	RoleEditor   Role = "editor"
	RoleAdmin    Role = "admin"
)

// Rank orders roles from least to most privileged.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleReviewer:
		return 2
	case RoleEditor:
		return 3
	case RoleAdmin:
		return 4
	}
	return 0
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// UserModel is the account record. The account subsystem owns it; this
// service only reads Role and Credits and mutates Credits.
type UserModel struct {
	Base     `bson:",inline"`
	Name     string `json:"name"    bson:"name"`
	Email    string `json:"email"   gorm:"uniqueIndex;size:191" bson:"email"`
	Role     Role   `json:"role"    gorm:"size:16;not null;default:'user'" bson:"role"`
	Credits  int    `json:"credits" gorm:"not null;default:0" bson:"credits"`
	IsActive bool   `json:"isActive" gorm:"not null;default:true" bson:"isActive"`
}

func (UserModel) TableName() string { return "users" }

// CreditTransactionModel is one entry of the credit journal.
type CreditTransactionModel struct {
	Base           `bson:",inline"`
	UserID         string `json:"userId"         gorm:"type:char(36);index;not null" bson:"userId"`
	Delta          int    `json:"delta"          gorm:"not null" bson:"delta"`
	BalanceAfter   int    `json:"balanceAfter"   gorm:"not null" bson:"balanceAfter"`
	Reason         string `json:"reason"         gorm:"size:64;not null" bson:"reason"`
	RefID          string `json:"refId,omitempty" gorm:"size:64;index" bson:"refId,omitempty"`
	IdempotencyKey string `json:"-"              gorm:"size:128;uniqueIndex;not null" bson:"idempotencyKey"`
}

func (CreditTransactionModel) TableName() string { return "credit_transactions" }

// Ledger entry reasons.
const (
	ReasonSummaryCreate     = "summary.create"
	ReasonSummaryRegenerate = "summary.regenerate"
	ReasonManualDeduct      = "manual.deduct"
	ReasonAdminSet          = "admin.set"
	ReasonTopUp             = "topup"
)
