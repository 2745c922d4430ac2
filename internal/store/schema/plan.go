package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is a locally stored knowledge plan with its full content.
// ContentHash carries a unique index so identical content can never be
// stored twice.
type Plan struct {
	ID                 string                      `gorm:"primaryKey;type:text"`
	Title              string                      `gorm:"type:text;not null"`
	Description        string                      `gorm:"type:text"`
	Content            string                      `gorm:"type:text;not null"`
	ContentHash        string                      `gorm:"type:text;not null;uniqueIndex"`
	Tags               datatypes.JSONSlice[string] `gorm:"type:text"`
	Domain             string                      `gorm:"type:text"`
	Language           string                      `gorm:"type:text"`
	Framework          string                      `gorm:"type:text"`
	ContributorAddress string                      `gorm:"type:text;not null;index"`
	QualityScore       int                         `gorm:"not null;default:-1"`
	PurchaseCount      int64                       `gorm:"not null;default:0"`
	CreatedAt          time.Time                   `gorm:"autoCreateTime"`
}

func (Plan) TableName() string {
	return "plans"
}

// Purchase is an immutable row recording one paid retrieval of a plan
type Purchase struct {
	ID                      uint      `gorm:"primaryKey;autoIncrement"`
	PlanID                  string    `gorm:"type:text;not null;index"`
	BuyerAddress            string    `gorm:"type:text;not null;index"`
	AmountStroops           int64     `gorm:"not null"`
	ContributorShareStroops int64     `gorm:"not null"`
	OperatorShareStroops    int64     `gorm:"not null"`
	TransactionHash         *string   `gorm:"type:text"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
}

func (Purchase) TableName() string {
	return "purchases"
}
