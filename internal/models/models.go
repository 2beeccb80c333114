package models

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	BalanceAdd      = "add"
	BalanceSubtract = "subtract"
	BalanceSet      = "set"
)

const (
	BannerHome     = "type1"
	BannerCategory = "type2"
)

type Settings struct {
	WebsiteName  string    `json:"websiteName"`
	WebsiteLogo  string    `json:"websiteLogo"`
	Announcement string    `json:"announcement"`
	CustomEmojis []string  `json:"customEmojis,omitempty"`
	Theme        string    `json:"theme"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type User struct {
	ID                     string     `json:"id" validate:"required"`
	TelegramID             string     `json:"telegramId" validate:"required"`
	Username               string     `json:"username"`
	FirstName              string     `json:"firstName"`
	LastName               string     `json:"lastName"`
	PhotoURL               string     `json:"photoUrl"`
	IsPremium              bool       `json:"isPremium"`
	Balance                int64      `json:"balance"`
	TotalOrders            int        `json:"totalOrders"`
	ApprovedOrders         int        `json:"approvedOrders"`
	RejectedOrders         int        `json:"rejectedOrders"`
	TotalSpent             int64      `json:"totalSpent"`
	TotalTopups            int        `json:"totalTopups"`
	FailedPurchaseAttempts int        `json:"failedPurchaseAttempts"`
	LastFailedAttempt      *time.Time `json:"lastFailedAttempt"`
	JoinedAt               time.Time  `json:"joinedAt"`
	LastActive             time.Time  `json:"lastActive"`
}

// UserProfile is the Telegram-provided part of a user record.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string
	IsPremium  bool
}

type Category struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Flag        string    `json:"flag"`
	HasDiscount bool      `json:"hasDiscount"`
	TotalSold   int       `json:"totalSold"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Product struct {
	ID              string    `json:"id" validate:"required"`
	CategoryID      string    `json:"categoryId"`
	Name            string    `json:"name"`
	Price           int64     `json:"price" validate:"gte=0"`
	Currency        string    `json:"currency"`
	Discount        int       `json:"discount" validate:"gte=0,lte=100"`
	DiscountedPrice int64     `json:"discountedPrice"`
	Icon            string    `json:"icon"`
	DeliveryTime    string    `json:"deliveryTime"`
	Sold            int       `json:"sold"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type InputTable struct {
	ID          string    `json:"id" validate:"required"`
	CategoryID  string    `json:"categoryId"`
	Name        string    `json:"name"`
	Placeholder string    `json:"placeholder"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Order struct {
	ID           string            `json:"id" validate:"required"`
	OrderID      string            `json:"orderId"`
	UserID       string            `json:"userId"`
	TelegramID   string            `json:"telegramId"`
	ProductID    string            `json:"productId"`
	ProductName  string            `json:"productName"`
	CategoryID   string            `json:"categoryId"`
	CategoryName string            `json:"categoryName"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	InputValues  map[string]string `json:"inputValues"`
	Status       string            `json:"status" validate:"oneof=pending approved rejected"`
	CreatedAt    time.Time         `json:"createdAt"`
	ProcessedAt  *time.Time        `json:"processedAt"`
	ProcessedBy  *string           `json:"processedBy"`
}

type Topup struct {
	ID            string     `json:"id" validate:"required"`
	UserID        string     `json:"userId"`
	TelegramID    string     `json:"telegramId"`
	Amount        int64      `json:"amount"`
	PaymentMethod string     `json:"paymentMethod"`
	ProofImage    string     `json:"proofImage"`
	Status        string     `json:"status" validate:"oneof=pending approved rejected"`
	CreatedAt     time.Time  `json:"createdAt"`
	ProcessedAt   *time.Time `json:"processedAt"`
	ProcessedBy   *string    `json:"processedBy"`
}

type Banner struct {
	ID          string    `json:"id" validate:"required"`
	Image       string    `json:"image"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Banners struct {
	Home     []Banner `json:"type1" validate:"dive"`
	Category []Banner `json:"type2" validate:"dive"`
}

type PaymentMethod struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	AccountName string    `json:"accountName"`
	Note        string    `json:"note"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"createdAt"`
}

type BannedUser struct {
	ID         string    `json:"id" validate:"required"`
	TelegramID string    `json:"telegramId" validate:"required"`
	Username   string    `json:"username"`
	FirstName  string    `json:"firstName"`
	Reason     string    `json:"reason"`
	BannedAt   time.Time `json:"bannedAt"`
	BannedBy   string    `json:"bannedBy"`
}

type Stats struct {
	TotalUsers      int   `json:"totalUsers"`
	TotalOrders     int   `json:"totalOrders"`
	PendingOrders   int   `json:"pendingOrders"`
	ApprovedOrders  int   `json:"approvedOrders"`
	RejectedOrders  int   `json:"rejectedOrders"`
	TotalRevenue    int64 `json:"totalRevenue"`
	PendingTopups   int   `json:"pendingTopups"`
	TotalProducts   int   `json:"totalProducts"`
	TotalCategories int   `json:"totalCategories"`
	BannedUsers     int   `json:"bannedUsers"`
}

type Broadcast struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Photo      string     `json:"photo,omitempty"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Patch types carry optional fields for shallow merges; nil means unchanged.

type SettingsPatch struct {
	WebsiteName  *string   `json:"websiteName"`
	WebsiteLogo  *string   `json:"websiteLogo"`
	Announcement *string   `json:"announcement"`
	CustomEmojis *[]string `json:"customEmojis"`
	Theme        *string   `json:"theme" validate:"omitempty,oneof=dark light"`
}

type UserPatch struct {
	Username  *string `json:"username"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	PhotoURL  *string `json:"photoUrl"`
	IsPremium *bool   `json:"isPremium"`
}

type CategoryPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Icon        *string `json:"icon"`
	Flag        *string `json:"flag"`
	HasDiscount *bool   `json:"hasDiscount"`
}

type ProductPatch struct {
	CategoryID   *string `json:"categoryId"`
	Name         *string `json:"name" validate:"omitempty,min=1"`
	Price        *int64  `json:"price" validate:"omitempty,gte=0"`
	Currency     *string `json:"currency"`
	Discount     *int    `json:"discount" validate:"omitempty,gte=0,lte=100"`
	Icon         *string `json:"icon"`
	DeliveryTime *string `json:"deliveryTime"`
}

type InputTablePatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Placeholder *string `json:"placeholder"`
}

type PaymentMethodPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Address     *string `json:"address"`
	AccountName *string `json:"accountName"`
	Note        *string `json:"note"`
	Icon        *string `json:"icon"`
}
