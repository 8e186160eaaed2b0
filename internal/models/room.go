package models

import "time"

// Room represents a physical room that slots can be assigned to.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Building  string    `db:"building" json:"building"`
	Floor     int       `db:"floor" json:"floor"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RoomFilter captures filters for listing rooms.
type RoomFilter struct {
	Building  string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
