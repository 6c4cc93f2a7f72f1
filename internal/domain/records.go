package domain

import "time"

// CommissionStatus is the maker-side progress of a commission.
type CommissionStatus string

const (
	StatusPending    CommissionStatus = "pending"
	StatusInProgress CommissionStatus = "in-progress"
	StatusCompleted  CommissionStatus = "completed"
)

// Maker is an artisan accepting commissions, addressed by a unique handle.
type Maker struct {
	ID                string   `json:"id"`
	Handle            string   `json:"handle"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Description       string   `json:"description,omitempty"`
	Location          string   `json:"location,omitempty"`
	Categories        []string `json:"categories"`
	CompletedProjects int      `json:"completedProjects"`
}

// Customer is unique on Email.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCustomer is the input for creating a customer record.
type NewCustomer struct {
	Name  string
	Email string
}

// Commission is a placed order bound to a maker and a customer.
type Commission struct {
	ID          string           `json:"id"`
	MakerID     string           `json:"makerId"`
	CustomerID  string           `json:"customerId"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      CommissionStatus `json:"status"`
	ChatHistory []Message        `json:"chatHistory"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NewCommission is the input for creating a commission record.
type NewCommission struct {
	MakerID     string
	CustomerID  string
	Title       string
	Description string
	Status      CommissionStatus
	ChatHistory []Message
}
