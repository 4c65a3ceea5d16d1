package repository

import "github.com/smallbiznis/kitties/internal/kitty/domain"

const kittyCounterName = "kitty_id"

// Ownership is one entry of a principal's collection. The row only
// references the record; reads join back to kitties.
type Ownership struct {
	Owner   domain.PrincipalID `gorm:"primaryKey;size:128"`
	KittyID domain.KittyID     `gorm:"primaryKey;autoIncrement:false;uniqueIndex:ux_kitty_ownerships_kitty_id"`
	Seq     int                `gorm:"not null"`
}

func (Ownership) TableName() string { return "kitty_ownerships" }

// Counter holds the last issued identifier.
type Counter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null"`
}

func (Counter) TableName() string { return "kitty_counters" }

// Models lists the tables owned by this package, for AutoMigrate.
func Models() []any {
	return []any{&domain.Kitty{}, &Ownership{}, &Counter{}}
}
