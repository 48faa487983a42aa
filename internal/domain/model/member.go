package model

// Member is a library patron. Loans reference members but never own them.
type Member struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}
