package entity

// User represents a row in the `users` table. PasswordHash holds the bcrypt
// hash stored in the `password` column; the plaintext is never persisted.
type User struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password"`
}
