package domain

// ActorType says which table an Actor points back to.
type ActorType int16

const (
	ActorTypeTeam ActorType = 0
	ActorTypeUser ActorType = 1
)

func (a ActorType) String() string {
	if a == ActorTypeTeam {
		return "team"
	}
	return "user"
}

// Actor is the polymorphic identity shared by users and teams.
type Actor struct {
	ID   int64     `json:"id" db:"id"`
	Type ActorType `json:"type" db:"type"`
}
