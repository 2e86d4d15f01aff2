package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Customer is the local replica of a backend customer record.
type Customer struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `gorm:"index" json:"phone,omitempty"` // lookup key, not unique
	Email     string    `gorm:"index" json:"email,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index" json:"updated_at"`

	RawData datatypes.JSON `json:"-"`
}

func (Customer) TableName() string { return "customers" }

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CustomerFromJSON decodes a backend customer and retains the raw record.
func CustomerFromJSON(raw json.RawMessage) (Customer, error) {
	var c Customer
	if err := json.Unmarshal(raw, &c); err != nil {
		return Customer{}, err
	}
	c.RawData = datatypes.JSON(append([]byte(nil), raw...))
	return c, nil
}

// JSON returns the record in the backend's shape.
func (c Customer) JSON() json.RawMessage {
	if len(c.RawData) > 0 {
		return json.RawMessage(c.RawData)
	}
	b, _ := json.Marshal(c)
	return b
}
