package models

type Product struct {
	ID          ID      `json:"id,omitempty"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    string  `json:"quantity"`
	Location    string  `json:"location"`
	Category    string  `json:"category"`
	FarmerID    ID      `json:"farmerId"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
	Organic     bool    `json:"organic"`
	InStock     bool    `json:"inStock"`
	Rating      float64 `json:"rating"`
}

type Category struct {
	ID   ID     `json:"id,omitempty"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type Buyer struct {
	ID        ID     `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Avatar    string `json:"avatar"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Farmer struct {
	ID             ID     `json:"id,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password,omitempty"`
	Phone          string `json:"phone"`
	Location       string `json:"location"`
	FarmSize       string `json:"farmSize"`
	Certified      bool   `json:"certified"`
	Specialization string `json:"specialization"`
	Avatar         string `json:"avatar"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusInTransit OrderStatus = "in-transit"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusRejected, OrderStatusInTransit:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusRejected || s == OrderStatusInTransit
}

func (s OrderStatus) String() string {
	return string(s)
}

type OrderItem struct {
	ProductID   ID      `json:"productId"`
	ProductName string  `json:"productName"`
	FarmerID    ID      `json:"farmerId"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

// Order is a snapshot of a cart taken at checkout. Only Status changes afterwards.
type Order struct {
	ID              ID          `json:"id,omitempty"`
	BuyerID         ID          `json:"buyerId"`
	BuyerName       string      `json:"buyerName"`
	Items           []OrderItem `json:"items"`
	TotalAmount     float64     `json:"totalAmount"`
	Status          OrderStatus `json:"status"`
	OrderDate       string      `json:"orderDate"`
	ShippingAddress string      `json:"shippingAddress"`
}
