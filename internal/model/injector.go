package model

import "time"

// Injector is a client application identity. Keys may be scoped to one
// injector; deleting an injector clears the reference on its keys rather
// than deleting them.
type Injector struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	RedirectURL *string   `json:"redirectUrl,omitempty" db:"redirect_url"`
	Status      bool      `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created" db:"created_at"`
}

// InjectorKeyCount pairs an injector with the number of keys bound to it,
// used by the dashboard overview.
type InjectorKeyCount struct {
	InjectorID int64 `json:"injectorId" db:"injector_id"`
	Count      int64 `json:"count" db:"n"`
}
