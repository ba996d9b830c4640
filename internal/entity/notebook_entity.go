package entity

import "time"

type Notebook struct {
	Id        string
	Name      string
	CreatedAt time.Time
}
