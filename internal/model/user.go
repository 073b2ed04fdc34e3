package model

// Role separates the staff principal from registered customers. The admin
// principal is configured, not stored, so the user collection only ever holds
// customers.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// User is an authentication principal for the customer role. Email doubles as
// the join key to Shipment.OwnerEmail (matched case-insensitively, never
// enforced as a foreign key).
type User struct {
	DisplayName  string `json:"displayName"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// Principal is what the identity provider yields after authentication; it is
// never persisted.
type Principal struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}
