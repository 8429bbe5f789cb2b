package domain

// Identity is the resolved caller of an operation.
type Identity struct {
	UserID int64
	Role   Role
	Name   string
}
