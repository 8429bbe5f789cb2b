package domain

import "time"

// User is an account able to authenticate against the service.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Agent is a staff user together with its workload.
type Agent struct {
	User
	AssignedTickets int64
}
