package models

import (
	"time"

	"github.com/shopspring/decimal"

	"lottofun/internal/apperr"
)

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"type:varchar(100);not null" json:"-"`
	FirstName    string `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName     string `gorm:"type:varchar(100);not null" json:"last_name"`

	Balance decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"balance"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) HasSufficientBalance(amount decimal.Decimal) bool {
	return u.Balance.GreaterThanOrEqual(amount)
}

func (u *User) DeductBalance(amount decimal.Decimal) error {
	if !u.HasSufficientBalance(amount) {
		return apperr.ErrInsufficientBalance
	}
	u.Balance = u.Balance.Sub(amount)
	return nil
}

func (u *User) AddBalance(amount decimal.Decimal) {
	u.Balance = u.Balance.Add(amount)
}
