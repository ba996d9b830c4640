package entity

// Identity is the opaque per-session user identity. All collection scoping
// keys off UserId; Token authenticates the store connection.
type Identity struct {
	UserId string
	Token  string
}
