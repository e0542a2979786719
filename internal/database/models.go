package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Pin            pgtype.Text
	Role           string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DiningTable struct {
	ID              uuid.UUID
	Name            string
	Capacity        int32
	AssignedStaffID pgtype.UUID
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TableSession struct {
	ID       uuid.UUID
	TableID  uuid.UUID
	Status   string
	OpenedAt time.Time
	EndedAt  pgtype.Timestamptz
}

type MenuItem struct {
	ID          uuid.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
	CreatedAt   time.Time
}

type ModifierOption struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	PriceDelta pgtype.Numeric
}

type Order struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	Status        string
	TotalAmount   pgtype.Numeric
	BillRequested bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   pgtype.Timestamptz
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int32
	UnitPrice  pgtype.Numeric
	Notes      pgtype.Text
	CreatedAt  time.Time
}

type OrderItemModifier struct {
	ID               uuid.UUID
	OrderItemID      uuid.UUID
	ModifierGroupID  uuid.UUID
	ModifierOptionID uuid.UUID
	PriceDelta       pgtype.Numeric
}

type Payment struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	Amount         pgtype.Numeric
	Method         string
	Status         string
	ClientSecret   pgtype.Text
	ExternalRef    pgtype.Text
	AmountReceived pgtype.Numeric
	ChangeAmount   pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TipAmount      pgtype.Numeric
	PaidAt         pgtype.Timestamptz
	CreatedAt      time.Time
}
