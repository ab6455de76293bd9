// internal/model/template.go
package model

import "time"

// Template is a named message with {{variable}} placeholders. Read-only while
// a run references it.
type Template struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Message   string    `db:"message" json:"message"`
	Variables []string  `db:"variables" json:"variables"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
